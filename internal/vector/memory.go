package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/vecbench/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force search under a
// configurable metric. Results are exact.
type MemoryIndex struct {
	metric     models.Metric
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension and metric.
func NewMemoryIndex(dimensions int, metric models.Metric) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		metric:     metric,
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// Add appends items. Vectors are copied.
func (m *MemoryIndex) Add(ctx context.Context, items []models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		if len(it.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(it.Vector), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, it.Vector)
		m.ids = append(m.ids, it.ID)
		m.vectors = append(m.vectors, vec)
	}
	return ctx.Err()
}

// Search returns the exact top-k neighbors of query.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]models.Neighbor, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return TopK(m.metric, query, m.ids, m.vectors, k), nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close drops the index contents.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = nil
	m.vectors = nil
	return nil
}
