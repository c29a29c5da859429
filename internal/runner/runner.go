// Package runner drives one (backend, configuration) pair through its lifecycle:
// INIT → BUILDING → WAITING_READY → WARMUP → MEASURING → TEARDOWN → DONE, with
// FAILED reachable from any non-terminal state. Teardown always runs exactly once.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/vecbench/internal/backend"
	"github.com/hyperjump/vecbench/internal/models"
)

// Config holds the per-run limits.
type Config struct {
	K                   int
	Trials              int
	Concurrency         int
	WarmupQueries       int
	WarmupFailureBudget int
	QueryTimeout        time.Duration
	ReadyTimeout        time.Duration
	ReadyPollInterval   time.Duration
	RunTimeout          time.Duration
	TeardownTimeout     time.Duration
	// TargetQPS throttles query submission when positive.
	TargetQPS float64
	Retry     RetryPolicy
}

// Validate rejects configurations the runner cannot execute.
func (c Config) Validate() error {
	switch {
	case c.K <= 0:
		return fmt.Errorf("%w: k must be positive", models.ErrConfigRejected)
	case c.Trials <= 0:
		return fmt.Errorf("%w: trials must be positive", models.ErrConfigRejected)
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive", models.ErrConfigRejected)
	case c.WarmupQueries < 0 || c.WarmupFailureBudget < 0:
		return fmt.Errorf("%w: warm-up settings must not be negative", models.ErrConfigRejected)
	case c.ReadyTimeout <= 0:
		return fmt.Errorf("%w: ready timeout must be positive", models.ErrConfigRejected)
	case c.TargetQPS < 0:
		return fmt.Errorf("%w: target qps must not be negative", models.ErrConfigRejected)
	}
	return nil
}

// Result is everything a run produced. Trials recorded before a failure are kept.
type Result struct {
	Backend       string         `json:"backend"`
	Configuration string         `json:"configuration"`
	State         State          `json:"state"`
	Err           error          `json:"-"`
	Transitions   []Transition   `json:"transitions"`
	Trials        []models.Trial `json:"trials"`
	BuildTime     time.Duration  `json:"build_time_ns"`
	BuildAttempts int            `json:"build_attempts"`
	TeardownCalls int            `json:"teardown_calls"`
	TeardownErr   error          `json:"-"`
}

// Runner executes runs. It is safe for sequential reuse across runs.
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a runner.
func New(cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadyPollInterval <= 0 {
		cfg.ReadyPollInterval = 500 * time.Millisecond
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = time.Minute
	}
	return &Runner{cfg: cfg, logger: logger.Named("runner")}
}

type run struct {
	*Runner
	res    *Result
	logger *zap.Logger
}

func (r *run) transition(to State, err error) {
	from := r.res.State
	if !CanTransition(from, to) {
		r.logger.Error("Illegal transition", zap.String("from", string(from)), zap.String("to", string(to)))
		return
	}
	t := Transition{From: from, To: to, At: time.Now()}
	if err != nil {
		t.Error = err.Error()
	}
	r.res.Transitions = append(r.res.Transitions, t)
	r.res.State = to
	if to == StateFailed {
		r.res.Err = err
		r.logger.Warn("Run failed",
			zap.String("from", string(from)),
			zap.String("kind", models.ErrorKind(err)),
			zap.Error(err))
		return
	}
	r.logger.Debug("State transition", zap.String("from", string(from)), zap.String("to", string(to)))
}

// Run executes one run of b with params against ds. Any failure is captured in
// the result; the returned Result is never nil.
func (r *Runner) Run(ctx context.Context, b backend.Backend, params backend.Params, ds *models.Dataset) *Result {
	label := params.Label()
	rn := &run{
		Runner: r,
		res: &Result{
			Backend:       b.Name(),
			Configuration: label,
			State:         StateInit,
		},
		logger: r.logger.With(zap.String("backend", b.Name()), zap.String("configuration", label)),
	}
	rn.res.Transitions = append(rn.res.Transitions, Transition{To: StateInit, At: time.Now()})

	runCtx := ctx
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	h, err := rn.execute(runCtx, b, params, ds)
	if err != nil {
		rn.transition(StateFailed, cancelled(runCtx, err))
	}
	rn.teardown(ctx, b, h)
	if rn.res.State == StateTeardown {
		rn.transition(StateDone, nil)
	}
	rn.logger.Info("Run finished",
		zap.String("state", string(rn.res.State)),
		zap.Int("trials", len(rn.res.Trials)),
		zap.Duration("build_time", rn.res.BuildTime))
	return rn.res
}

// cancelled rewrites err as ErrRunCancelled when the run context expired.
func cancelled(ctx context.Context, err error) error {
	if ctx.Err() == nil || errors.Is(err, models.ErrRunCancelled) {
		return err
	}
	if errors.Is(err, models.ErrConfigRejected) || errors.Is(err, models.ErrIngestionTimeout) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrRunCancelled, err)
}

func (r *run) execute(ctx context.Context, b backend.Backend, params backend.Params, ds *models.Dataset) (backend.Handle, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if ds == nil || len(ds.Corpus) == 0 || len(ds.Queries) == 0 {
		return nil, fmt.Errorf("%w: empty dataset", models.ErrConfigRejected)
	}
	if err := b.Capabilities().Validate(ds.Metric, params); err != nil {
		return nil, err
	}

	r.transition(StateBuilding, nil)
	start := time.Now()
	h, err := r.build(ctx, b, params, ds)
	r.res.BuildTime = time.Since(start)
	if err != nil {
		return h, err
	}
	r.logger.Info("Index built", zap.Duration("build_time", r.res.BuildTime), zap.Int("attempts", r.res.BuildAttempts))

	r.transition(StateWaitingReady, nil)
	if err := r.waitReady(ctx, b, h); err != nil {
		return h, err
	}

	for n := 1; n <= r.cfg.Trials; n++ {
		r.transition(StateWarmup, nil)
		warmupFailures, err := r.warmup(ctx, b, h, ds.Queries)
		if err != nil {
			return h, err
		}

		r.transition(StateMeasuring, nil)
		obs, span := r.issue(ctx, b, h, ds.Queries)
		trial := models.Trial{Number: n, Span: span, WarmupFailures: warmupFailures}
		for i := range obs {
			obs[i].Backend = r.res.Backend
			obs[i].Configuration = r.res.Configuration
			obs[i].Trial = n
			if obs[i].Incomplete {
				trial.Incomplete = true
			}
		}
		trial.Observations = obs
		r.res.Trials = append(r.res.Trials, trial)
		if err := ctx.Err(); err != nil {
			return h, fmt.Errorf("%w: measuring trial %d: %v", models.ErrRunCancelled, n, err)
		}
		r.logger.Debug("Trial measured", zap.Int("trial", n), zap.Duration("span", span))
	}
	r.transition(StateTeardown, nil)
	return h, nil
}

func (r *run) build(ctx context.Context, b backend.Backend, params backend.Params, ds *models.Dataset) (backend.Handle, error) {
	policy := r.cfg.Retry
	for attempt := 1; ; attempt++ {
		r.res.BuildAttempts = attempt
		h, err := b.Build(ctx, ds.Corpus, ds.Metric, params)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, models.ErrBackendUnavailable) || attempt >= policy.Attempts() || ctx.Err() != nil {
			return h, fmt.Errorf("build (attempt %d): %w", attempt, err)
		}
		if h != nil {
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.TeardownTimeout)
			if terr := b.Teardown(tctx, h); terr != nil {
				r.logger.Warn("Partial teardown failed", zap.Int("attempt", attempt), zap.Error(terr))
			}
			cancel()
		}
		wait := policy.Backoff(attempt)
		r.logger.Warn("Backend unavailable, retrying build",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.Attempts()),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if serr := sleep(ctx, wait); serr != nil {
			return nil, fmt.Errorf("%w: build backoff: %v", models.ErrRunCancelled, serr)
		}
	}
}

func (r *run) waitReady(ctx context.Context, b backend.Backend, h backend.Handle) error {
	rctx, cancel := context.WithTimeout(ctx, r.cfg.ReadyTimeout)
	defer cancel()
	ticker := time.NewTicker(r.cfg.ReadyPollInterval)
	defer ticker.Stop()

	polls := 0
	var lastErr error
	for {
		polls++
		ok, err := b.Ready(rctx, h)
		switch {
		case err == nil && ok:
			r.logger.Debug("Backend ready", zap.Int("polls", polls))
			return nil
		case err != nil && errors.Is(err, models.ErrConfigRejected):
			return err
		case err != nil:
			lastErr = err
			r.logger.Debug("Readiness check failed", zap.Int("poll", polls), zap.Error(err))
		}
		select {
		case <-rctx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("%w: waiting for readiness: %v", models.ErrRunCancelled, ctx.Err())
			}
			if lastErr != nil {
				return fmt.Errorf("%w: not ready after %s (%d polls, last error: %v)", models.ErrIngestionTimeout, r.cfg.ReadyTimeout, polls, lastErr)
			}
			return fmt.Errorf("%w: not ready after %s (%d polls)", models.ErrIngestionTimeout, r.cfg.ReadyTimeout, polls)
		case <-ticker.C:
		}
	}
}

// warmup issues discarded queries, cycling through the query set.
func (r *run) warmup(ctx context.Context, b backend.Backend, h backend.Handle, queries []models.Item) (int, error) {
	n := r.cfg.WarmupQueries
	if n == 0 {
		return 0, nil
	}
	batch := make([]models.Item, n)
	for i := range batch {
		batch[i] = queries[i%len(queries)]
	}
	obs, _ := r.issue(ctx, b, h, batch)
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: warm-up: %v", models.ErrRunCancelled, err)
	}
	failures := 0
	for _, o := range obs {
		if o.Failed {
			failures++
			r.logger.Debug("Warm-up query failed", zap.String("query_id", o.QueryID), zap.String("error", o.Error))
		}
	}
	if failures > 0 {
		r.logger.Warn("Warm-up failures", zap.Int("failures", failures), zap.Int("budget", r.cfg.WarmupFailureBudget))
	}
	if failures > r.cfg.WarmupFailureBudget {
		return failures, fmt.Errorf("%w: %d warm-up failures exceed budget %d", models.ErrQueryFailure, failures, r.cfg.WarmupFailureBudget)
	}
	return failures, nil
}

// teardown runs once per run with a context detached from run cancellation.
func (r *run) teardown(ctx context.Context, b backend.Backend, h backend.Handle) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.TeardownTimeout)
	defer cancel()
	r.res.TeardownCalls++
	if err := b.Teardown(tctx, h); err != nil {
		r.res.TeardownErr = err
		r.logger.Warn("Teardown failed", zap.Error(err))
	}
}
