package vector

import (
	"context"
	"testing"

	"github.com/hyperjump/vecbench/internal/models"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3, models.MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	items := []models.Item{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0}},
		{ID: "c", Vector: []float32{0, 1, 0}},
	}
	if err := idx.Add(ctx, items); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("unexpected order: %v", models.NeighborIDs(results))
	}
}

func TestMemoryIndex_FewerThanK(t *testing.T) {
	idx, _ := NewMemoryIndex(2, models.MetricEuclidean)
	ctx := context.Background()
	_ = idx.Add(ctx, []models.Item{{ID: "x", Vector: []float32{1, 0}}})
	results, err := idx.Search(ctx, []float32{0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(2, models.MetricDot)
	ctx := context.Background()
	if err := idx.Add(ctx, []models.Item{{ID: "x", Vector: []float32{1, 0, 0}}}); err == nil {
		t.Error("expected error for wrong vector dimension")
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected error for wrong query dimension")
	}
}

func TestNewMemoryIndex_InvalidDimension(t *testing.T) {
	if _, err := NewMemoryIndex(0, models.MetricCosine); err == nil {
		t.Error("expected error for zero dimension")
	}
}
