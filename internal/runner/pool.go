package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/vecbench/internal/backend"
	"github.com/hyperjump/vecbench/internal/models"
)

// issue runs queries through a bounded pool. Each observation lands at its
// submission index; queries never issued stay Incomplete.
func (r *Runner) issue(ctx context.Context, b backend.Backend, h backend.Handle, queries []models.Item) ([]models.Observation, time.Duration) {
	obs := make([]models.Observation, len(queries))
	for i, q := range queries {
		obs[i] = models.Observation{
			QueryIndex: i,
			QueryID:    q.ID,
			Latency:    models.FailedLatency,
			Incomplete: true,
		}
	}

	var limiter *rate.Limiter
	if r.cfg.TargetQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.TargetQPS), 1)
	}

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	start := time.Now()
	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			obs[i] = r.query(ctx, b, h, i, q)
			return nil
		})
	}
	_ = g.Wait()
	return obs, time.Since(start)
}

func (r *Runner) query(ctx context.Context, b backend.Backend, h backend.Handle, i int, q models.Item) models.Observation {
	qctx := ctx
	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}
	o := models.Observation{QueryIndex: i, QueryID: q.ID}
	start := time.Now()
	neighbors, err := b.Query(qctx, h, q.Vector, r.cfg.K)
	o.Latency = time.Since(start)
	if err == nil && ctx.Err() == nil && errors.Is(qctx.Err(), context.DeadlineExceeded) {
		// The adapter ignored the deadline and answered late.
		err = fmt.Errorf("query timeout after %s", r.cfg.QueryTimeout)
	}
	if err != nil {
		o.Latency = models.FailedLatency
		if ctx.Err() != nil {
			// Cut short by run cancellation rather than a backend failure.
			o.Incomplete = true
			o.Error = ctx.Err().Error()
			return o
		}
		o.Failed = true
		o.Error = fmt.Errorf("%w: %v", models.ErrQueryFailure, err).Error()
		return o
	}
	o.Neighbors = neighbors
	return o
}
