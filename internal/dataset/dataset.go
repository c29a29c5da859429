// Package dataset builds validated benchmark datasets, either from caller-supplied
// items or from seeded synthetic generators.
package dataset

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/hyperjump/vecbench/internal/embedding"
	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/pkg/utils"
)

// Kind selects a synthetic generator.
type Kind string

const (
	// KindUniform draws components uniformly from [-1, 1).
	KindUniform Kind = "uniform"
	// KindGaussian draws components from a standard normal distribution.
	KindGaussian Kind = "gaussian"
	// KindClustered draws points around a fixed number of Gaussian centers.
	KindClustered Kind = "clustered"
	// KindText generates word payloads and embeds them through an Embedder.
	KindText Kind = "text"
)

// Spec describes a synthetic dataset.
type Spec struct {
	Name       string
	Kind       Kind
	CorpusSize int
	QuerySize  int
	Dimensions int
	Metric     models.Metric
	Seed       int64
	// Clusters is used by KindClustered. Defaults to 16.
	Clusters int
	// Normalize scales every vector to unit length.
	Normalize bool
}

// New assembles a dataset from already-embedded items and validates it.
func New(name string, metric models.Metric, corpus, queries []models.Item) (*models.Dataset, error) {
	dims := 0
	if len(corpus) > 0 {
		dims = len(corpus[0].Vector)
	}
	ds := &models.Dataset{
		Name:       name,
		Metric:     metric,
		Dimensions: dims,
		Corpus:     corpus,
		Queries:    queries,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Generate builds the dataset described by spec. The embedder is only consulted
// for KindText, and may be nil otherwise.
func Generate(ctx context.Context, spec Spec, embedder embedding.Embedder) (*models.Dataset, error) {
	if spec.CorpusSize <= 0 || spec.QuerySize <= 0 {
		return nil, fmt.Errorf("%w: dataset %q: corpus_size and query_size must be positive",
			models.ErrGroundTruthInconsistency, spec.Name)
	}
	rng := rand.New(rand.NewSource(spec.Seed))
	total := spec.CorpusSize + spec.QuerySize

	var vectors [][]float32
	var payloads []string
	switch spec.Kind {
	case KindUniform, "":
		vectors = uniformVectors(rng, total, spec.Dimensions)
	case KindGaussian:
		vectors = gaussianVectors(rng, total, spec.Dimensions)
	case KindClustered:
		clusters := spec.Clusters
		if clusters <= 0 {
			clusters = 16
		}
		vectors = clusteredVectors(rng, total, spec.Dimensions, clusters, 0.1)
	case KindText:
		if embedder == nil {
			return nil, fmt.Errorf("dataset %q: kind text requires an embedder", spec.Name)
		}
		payloads = textPayloads(rng, total)
		var err error
		vectors, err = embedder.EmbedBatch(ctx, payloads)
		if err != nil {
			return nil, fmt.Errorf("embed dataset %q: %w", spec.Name, err)
		}
	default:
		return nil, fmt.Errorf("unknown dataset kind: %s (supported: uniform, gaussian, clustered, text)", spec.Kind)
	}

	if spec.Normalize {
		for _, v := range vectors {
			utils.NormalizeL2(v)
		}
	}

	corpus := make([]models.Item, spec.CorpusSize)
	for i := range corpus {
		corpus[i] = models.Item{ID: fmt.Sprintf("c%07d", i), Vector: vectors[i]}
		if payloads != nil {
			corpus[i].Payload = payloads[i]
		}
	}
	queries := make([]models.Item, spec.QuerySize)
	for i := range queries {
		j := spec.CorpusSize + i
		queries[i] = models.Item{ID: fmt.Sprintf("q%07d", i), Vector: vectors[j]}
		if payloads != nil {
			queries[i].Payload = payloads[j]
		}
	}
	return New(spec.Name, spec.Metric, corpus, queries)
}

// Single backing array, as in most ANN benchmark fixtures.
func uniformVectors(rng *rand.Rand, num, dim int) [][]float32 {
	data := make([]float32, num*dim)
	out := make([][]float32, num)
	for i := range out {
		v := data[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func gaussianVectors(rng *rand.Rand, num, dim int) [][]float32 {
	data := make([]float32, num*dim)
	out := make([][]float32, num)
	for i := range out {
		v := data[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func clusteredVectors(rng *rand.Rand, num, dim, clusters int, spread float32) [][]float32 {
	centers := gaussianVectors(rng, clusters, dim)
	out := gaussianVectors(rng, num, dim)
	for i, v := range out {
		c := centers[rng.Intn(clusters)]
		for j := range v {
			v[j] = c[j] + v[j]*spread
		}
		out[i] = v
	}
	return out
}

var vocabulary = strings.Fields(`
	vector index search query latency recall throughput cluster shard replica
	graph layer neighbor distance cosine euclidean embedding model token batch
	storage memory disk cache page segment compaction snapshot ingest stream
	database table column row schema extension operator planner scan filter
	network socket request response timeout retry backoff worker pool queue`)

func textPayloads(rng *rand.Rand, num int) []string {
	out := make([]string, num)
	var b strings.Builder
	for i := range out {
		b.Reset()
		words := 4 + rng.Intn(8)
		for w := 0; w < words; w++ {
			if w > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(vocabulary[rng.Intn(len(vocabulary))])
		}
		out[i] = b.String()
	}
	return out
}
