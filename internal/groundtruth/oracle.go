// Package groundtruth computes exact nearest-neighbor reference results and caches
// them per (corpus, queries, k, metric).
package groundtruth

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/vector"
)

// Oracle computes exact top-k neighbors by full pairwise evaluation. Results are
// deterministic and do not depend on the worker count.
type Oracle struct {
	workers int
	store   Store
	logger  *zap.Logger

	memo  *memoryStore
	group singleflight.Group
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithWorkers bounds the number of queries evaluated in parallel. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *Oracle) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithStore adds a persistent cache tier behind the in-memory one.
func WithStore(s Store) Option {
	return func(o *Oracle) { o.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Oracle) { o.logger = l }
}

// NewOracle creates an oracle.
func NewOracle(opts ...Option) *Oracle {
	o := &Oracle{
		workers: runtime.GOMAXPROCS(0),
		logger:  zap.NewNop(),
		memo:    newMemoryStore(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// KeyFor returns the cache key for ds and k.
func KeyFor(ds *models.Dataset, k int) models.TruthKey {
	return models.TruthKey{
		Corpus:  ds.CorpusIdentity(),
		Queries: ds.QueryIdentity(),
		K:       k,
		Metric:  ds.Metric,
	}
}

// GroundTruth returns the cached ground truth for ds and k, computing it on a miss.
// The returned set is shared and must be treated as read-only.
func (o *Oracle) GroundTruth(ctx context.Context, ds *models.Dataset, k int) (*models.GroundTruthSet, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrConfigRejected, k)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	key := KeyFor(ds, k)
	v, err, _ := o.group.Do(key.String(), func() (any, error) {
		return o.lookupOrCompute(ctx, ds, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.GroundTruthSet), nil
}

func (o *Oracle) lookupOrCompute(ctx context.Context, ds *models.Dataset, key models.TruthKey) (*models.GroundTruthSet, error) {
	if gt, ok, _ := o.memo.Get(ctx, key); ok {
		return gt, nil
	}
	if o.store != nil {
		gt, ok, err := o.store.Get(ctx, key)
		if err != nil {
			o.logger.Warn("ground truth cache read failed", zap.String("key", key.String()), zap.Error(err))
		} else if ok && len(gt.Neighbors) == len(ds.Queries) {
			o.logger.Debug("ground truth cache hit", zap.String("key", key.String()))
			_ = o.memo.Put(ctx, gt)
			return gt, nil
		}
	}

	start := time.Now()
	gt, err := o.Compute(ctx, ds, key.K)
	if err != nil {
		return nil, err
	}
	o.logger.Info("ground truth computed",
		zap.String("dataset", ds.Name),
		zap.Int("corpus", len(ds.Corpus)),
		zap.Int("queries", len(ds.Queries)),
		zap.Int("k", key.K),
		zap.Duration("took", time.Since(start)),
	)
	_ = o.memo.Put(ctx, gt)
	if o.store != nil {
		if err := o.store.Put(ctx, gt); err != nil {
			o.logger.Warn("ground truth cache write failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
	return gt, nil
}

// Compute evaluates the exact top-k of every query without consulting any cache.
func (o *Oracle) Compute(ctx context.Context, ds *models.Dataset, k int) (*models.GroundTruthSet, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	ids := make([]string, len(ds.Corpus))
	vectors := make([][]float32, len(ds.Corpus))
	for i, it := range ds.Corpus {
		ids[i] = it.ID
		vectors[i] = it.Vector
	}

	neighbors := make([][]models.Neighbor, len(ds.Queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range ds.Queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			neighbors[i] = vector.TopK(ds.Metric, ds.Queries[i].Vector, ids, vectors, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute ground truth: %w", err)
	}
	return &models.GroundTruthSet{Key: KeyFor(ds, k), Neighbors: neighbors}, nil
}

// Close releases the persistent store, if any.
func (o *Oracle) Close() error {
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}
