package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2(x)
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("norm^2 = %f, want 1", sum)
	}
	z := []float32{0, 0}
	NormalizeL2(z)
	if z[0] != 0 || z[1] != 0 {
		t.Error("zero vector should be unchanged")
	}
}

func TestClamp01(t *testing.T) {
	if Clamp01(-0.5) != 0 || Clamp01(1.5) != 1 || Clamp01(0.25) != 0.25 {
		t.Error("Clamp01 out of range")
	}
}
