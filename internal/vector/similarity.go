// Package vector provides distance functions and exact top-k selection shared by the
// ground-truth oracle and the in-memory baseline.
package vector

import (
	"math"

	"github.com/hyperjump/vecbench/internal/models"
)

// InnerProduct returns the inner product of two vectors.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Euclidean returns the L2 distance between a and b.
func Euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - InnerProduct(a, b)/(na*nb)
}

// Distance returns the distance between a and b under metric. Smaller is closer for
// every metric; dot distance is the negated inner product.
func Distance(metric models.Metric, a, b []float32) float64 {
	switch metric {
	case models.MetricEuclidean:
		return Euclidean(a, b)
	case models.MetricDot:
		return -InnerProduct(a, b)
	default:
		return CosineDistance(a, b)
	}
}

// Func returns the distance function for metric.
func Func(metric models.Metric) func(a, b []float32) float64 {
	return func(a, b []float32) float64 { return Distance(metric, a, b) }
}
