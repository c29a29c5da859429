package models

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Dataset is an ordered set of items split into an indexed corpus and a query set
// that is never indexed. All vectors share one dimension and metric.
type Dataset struct {
	Name       string
	Metric     Metric
	Dimensions int
	Corpus     []Item
	Queries    []Item
}

// Validate checks the construction invariants: non-empty subsets, unique IDs,
// disjoint corpus and query sets, and one vector dimension. Violations are
// reported as ErrGroundTruthInconsistency since no valid reference exists for them.
func (d *Dataset) Validate() error {
	if d.Dimensions <= 0 {
		return fmt.Errorf("%w: dataset %q: dimensions must be positive", ErrGroundTruthInconsistency, d.Name)
	}
	if len(d.Corpus) == 0 || len(d.Queries) == 0 {
		return fmt.Errorf("%w: dataset %q: corpus and query sets must be non-empty", ErrGroundTruthInconsistency, d.Name)
	}
	if _, err := ParseMetric(string(d.Metric)); err != nil {
		return fmt.Errorf("%w: dataset %q: %v", ErrGroundTruthInconsistency, d.Name, err)
	}
	corpusIDs := make(map[string]struct{}, len(d.Corpus))
	for _, it := range d.Corpus {
		if len(it.Vector) != d.Dimensions {
			return fmt.Errorf("%w: dataset %q: corpus item %q has dimension %d, expected %d",
				ErrGroundTruthInconsistency, d.Name, it.ID, len(it.Vector), d.Dimensions)
		}
		if _, dup := corpusIDs[it.ID]; dup {
			return fmt.Errorf("%w: dataset %q: duplicate corpus id %q", ErrGroundTruthInconsistency, d.Name, it.ID)
		}
		corpusIDs[it.ID] = struct{}{}
	}
	queryIDs := make(map[string]struct{}, len(d.Queries))
	for _, it := range d.Queries {
		if len(it.Vector) != d.Dimensions {
			return fmt.Errorf("%w: dataset %q: query item %q has dimension %d, expected %d",
				ErrGroundTruthInconsistency, d.Name, it.ID, len(it.Vector), d.Dimensions)
		}
		if _, overlap := corpusIDs[it.ID]; overlap {
			return fmt.Errorf("%w: dataset %q: item %q is in both corpus and query sets",
				ErrGroundTruthInconsistency, d.Name, it.ID)
		}
		if _, dup := queryIDs[it.ID]; dup {
			return fmt.Errorf("%w: dataset %q: duplicate query id %q", ErrGroundTruthInconsistency, d.Name, it.ID)
		}
		queryIDs[it.ID] = struct{}{}
	}
	return nil
}

// CorpusIdentity returns a content hash of the corpus (ids and vectors, in order).
func (d *Dataset) CorpusIdentity() uint64 {
	return hashItems(d.Corpus)
}

// QueryIdentity returns a content hash of the query set.
func (d *Dataset) QueryIdentity() uint64 {
	return hashItems(d.Queries)
}

func hashItems(items []Item) uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(items)))
	_, _ = h.Write(buf[:])
	for _, it := range items {
		_, _ = h.WriteString(it.ID)
		_, _ = h.Write([]byte{0})
		for _, v := range it.Vector {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			_, _ = h.Write(buf[:4])
		}
	}
	return h.Sum64()
}
