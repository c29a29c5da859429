// Package models defines the benchmark data model: items, datasets, ground truth,
// observations and derived metric records.
package models

import (
	"fmt"
	"strings"
)

// Metric is the distance metric declared by a dataset.
type Metric string

const (
	// MetricCosine is 1 - cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricEuclidean is the L2 distance.
	MetricEuclidean Metric = "euclidean"
	// MetricDot is the negated inner product, so smaller is closer for every metric.
	MetricDot Metric = "dot"
)

// ParseMetric parses a metric name. Accepts a few common aliases ("l2", "ip").
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "cos", "":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dot", "ip", "inner_product":
		return MetricDot, nil
	default:
		return "", fmt.Errorf("unknown metric: %q (supported: cosine, euclidean, dot)", s)
	}
}

// Item is one dataset entry. Immutable once embedded.
type Item struct {
	ID      string    `json:"id" msgpack:"id"`
	Payload string    `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Vector  []float32 `json:"-" msgpack:"vector"`
}

// Neighbor is one (identifier, distance) pair returned by a backend or the oracle.
type Neighbor struct {
	ID       string  `json:"id" msgpack:"id"`
	Distance float64 `json:"distance" msgpack:"distance"`
}

// NeighborIDs returns the identifiers of ns in order.
func NeighborIDs(ns []Neighbor) []string {
	ids := make([]string, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	return ids
}
