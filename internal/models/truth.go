package models

import "fmt"

// TruthKey identifies a ground-truth computation. Any change to the corpus, the
// query set, k or the metric yields a different key.
type TruthKey struct {
	Corpus  uint64 `msgpack:"corpus"`
	Queries uint64 `msgpack:"queries"`
	K       int    `msgpack:"k"`
	Metric  Metric `msgpack:"metric"`
}

// String encodes the key for use in caches and logs.
func (k TruthKey) String() string {
	return fmt.Sprintf("%016x-%016x-k%d-%s", k.Corpus, k.Queries, k.K, k.Metric)
}

// GroundTruthSet holds the exact top-k corpus neighbors for every query, in query
// order. Each list is sorted by ascending distance, ties by ascending ID.
type GroundTruthSet struct {
	Key       TruthKey     `msgpack:"key"`
	Neighbors [][]Neighbor `msgpack:"neighbors"`
}

// K returns the k the set was computed for.
func (g *GroundTruthSet) K() int {
	return g.Key.K
}

// IDs returns the neighbor identifiers for query i.
func (g *GroundTruthSet) IDs(i int) []string {
	return NeighborIDs(g.Neighbors[i])
}
