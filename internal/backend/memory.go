package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/vector"
)

// TypeMemory is the exact in-process baseline.
const TypeMemory = "memory"

// Memory is a brute-force backend sharing the oracle's distance and tie-break,
// so its recall is exactly 1.0. ready_after and query_delay simulate an
// eventually consistent service.
type Memory struct {
	logger *zap.Logger
	now    func() time.Time
}

type memoryHandle struct {
	index      *vector.MemoryIndex
	readyAt    time.Time
	queryDelay time.Duration
}

func (*memoryHandle) BackendName() string { return TypeMemory }

// NewMemory creates the baseline backend.
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{logger: logger.Named(TypeMemory), now: time.Now}
}

func (m *Memory) Name() string { return TypeMemory }

func (m *Memory) Capabilities() Capabilities {
	return Capabilities{
		Metrics: []models.Metric{models.MetricCosine, models.MetricEuclidean, models.MetricDot},
		Params: map[string]ParamKind{
			"ready_after": ParamDuration,
			"query_delay": ParamDuration,
		},
		EventuallyConsistent: true,
	}
}

func (m *Memory) Build(ctx context.Context, corpus []models.Item, metric models.Metric, params Params) (Handle, error) {
	readyAfter, err := params.Duration("ready_after", 0)
	if err != nil {
		return nil, err
	}
	queryDelay, err := params.Duration("query_delay", 0)
	if err != nil {
		return nil, err
	}
	if readyAfter < 0 || queryDelay < 0 {
		return nil, fmt.Errorf("%w: negative duration", models.ErrConfigRejected)
	}
	if len(corpus) == 0 {
		return nil, fmt.Errorf("%w: empty corpus", models.ErrConfigRejected)
	}
	idx, err := vector.NewMemoryIndex(len(corpus[0].Vector), metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfigRejected, err)
	}
	if err := idx.Add(ctx, corpus); err != nil {
		return &memoryHandle{index: idx}, fmt.Errorf("memory: ingest: %w", err)
	}
	m.logger.Debug("Index built",
		zap.Int("items", idx.Size()),
		zap.String("metric", string(metric)),
		zap.Duration("ready_after", readyAfter))
	return &memoryHandle{
		index:      idx,
		readyAt:    m.now().Add(readyAfter),
		queryDelay: queryDelay,
	}, nil
}

func (m *Memory) Ready(ctx context.Context, h Handle) (bool, error) {
	mh, err := handleAs[*memoryHandle](h, TypeMemory)
	if err != nil {
		return false, err
	}
	return !m.now().Before(mh.readyAt), nil
}

func (m *Memory) Query(ctx context.Context, h Handle, vec []float32, k int) ([]models.Neighbor, error) {
	mh, err := handleAs[*memoryHandle](h, TypeMemory)
	if err != nil {
		return nil, err
	}
	if mh.queryDelay > 0 {
		t := time.NewTimer(mh.queryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return mh.index.Search(ctx, vec, k)
}

func (m *Memory) Teardown(ctx context.Context, h Handle) error {
	if h == nil {
		return nil
	}
	mh, err := handleAs[*memoryHandle](h, TypeMemory)
	if err != nil {
		return err
	}
	return mh.index.Close()
}
