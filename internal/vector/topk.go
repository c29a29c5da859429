package vector

import (
	"container/heap"
	"sort"

	"github.com/hyperjump/vecbench/internal/models"
)

// closer orders neighbors by ascending distance, ties by ascending ID.
func closer(a, b models.Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// worstFirst is a max-heap: the neighbor that would be evicted first sits on top.
type worstFirst []models.Neighbor

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(models.Neighbor)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopK returns the k nearest of vectors to query by exhaustive evaluation. Result
// order is ascending distance with ties broken by ascending ID, so the output is a
// pure function of the inputs.
func TopK(metric models.Metric, query []float32, ids []string, vectors [][]float32, k int) []models.Neighbor {
	if k <= 0 || len(vectors) == 0 {
		return nil
	}
	if k > len(vectors) {
		k = len(vectors)
	}
	h := make(worstFirst, 0, k)
	for i, v := range vectors {
		n := models.Neighbor{ID: ids[i], Distance: Distance(metric, query, v)}
		if len(h) < k {
			heap.Push(&h, n)
			continue
		}
		if closer(n, h[0]) {
			h[0] = n
			heap.Fix(&h, 0)
		}
	}
	out := make([]models.Neighbor, len(h))
	copy(out, h)
	sort.Slice(out, func(i, j int) bool { return closer(out[i], out[j]) })
	return out
}
