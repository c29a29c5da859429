// Package experiment drives a full benchmark: it builds every dataset, obtains
// ground truth once per dataset, runs each backend configuration in turn and
// collects one comparison table per dataset.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/vecbench/internal/backend"
	"github.com/hyperjump/vecbench/internal/config"
	"github.com/hyperjump/vecbench/internal/dataset"
	"github.com/hyperjump/vecbench/internal/embedding"
	"github.com/hyperjump/vecbench/internal/groundtruth"
	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/results"
	"github.com/hyperjump/vecbench/internal/runner"
	"github.com/hyperjump/vecbench/internal/storage"
	"go.uber.org/zap"
)

const embedCacheSize = 4096

// BackendFactory constructs a backend adapter by type.
type BackendFactory func(typ string, conn backend.Connection, logger *zap.Logger) (backend.Backend, error)

// Report is the outcome of one experiment invocation.
type Report struct {
	Run    *models.ExperimentRun
	Tables []*results.ComparisonTable
}

// Experiment executes the definition in a Config.
type Experiment struct {
	cfg        *config.Config
	store      storage.Storage
	oracle     *groundtruth.Oracle
	newBackend BackendFactory
	logger     *zap.Logger
}

// Option configures an Experiment.
type Option func(*Experiment)

// WithStorage persists runs and tables to s.
func WithStorage(s storage.Storage) Option {
	return func(e *Experiment) { e.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Experiment) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBackendFactory replaces backend.New.
func WithBackendFactory(f BackendFactory) Option {
	return func(e *Experiment) { e.newBackend = f }
}

// New prepares an experiment. When ground_truth.cache_dir is set the oracle
// keeps its results in a badger store there.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	e := &Experiment{
		cfg:        cfg,
		newBackend: backend.New,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("experiment")

	oracleOpts := []groundtruth.Option{
		groundtruth.WithWorkers(cfg.GroundTruth.Workers),
		groundtruth.WithLogger(e.logger),
	}
	if cfg.GroundTruth.CacheDir != "" {
		store, err := groundtruth.NewBadgerStore(groundtruth.BadgerStoreOptions{Dir: cfg.GroundTruth.CacheDir})
		if err != nil {
			return nil, fmt.Errorf("open ground truth cache: %w", err)
		}
		oracleOpts = append(oracleOpts, groundtruth.WithStore(store))
	}
	e.oracle = groundtruth.NewOracle(oracleOpts...)
	return e, nil
}

// Close releases the oracle and its cache.
func (e *Experiment) Close() error {
	return e.oracle.Close()
}

// Dataset generates the dataset described by dc.
func (e *Experiment) Dataset(ctx context.Context, dc config.DatasetConfig) (*models.Dataset, error) {
	metric, err := models.ParseMetric(dc.Metric)
	if err != nil {
		return nil, err
	}
	spec := dataset.Spec{
		Name:       dc.Name,
		Kind:       dataset.Kind(dc.Kind),
		CorpusSize: dc.CorpusSize,
		QuerySize:  dc.QuerySize,
		Dimensions: dc.Dimensions,
		Metric:     metric,
		Seed:       dc.Seed,
		Clusters:   dc.Clusters,
		Normalize:  dc.Normalize,
	}
	var embedder embedding.Embedder
	if spec.Kind == dataset.KindText {
		embedder = embedding.NewCachedEmbedder(embedding.NewHashEmbedder(dc.Dimensions), embedCacheSize)
		defer embedder.Close()
	}
	start := time.Now()
	ds, err := dataset.Generate(ctx, spec, embedder)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Dataset ready",
		zap.String("dataset", ds.Name),
		zap.Int("corpus", len(ds.Corpus)),
		zap.Int("queries", len(ds.Queries)),
		zap.Int("dimensions", ds.Dimensions),
		zap.Duration("elapsed", time.Since(start)))
	return ds, nil
}

// Truth returns the ground truth for ds at the configured k.
func (e *Experiment) Truth(ctx context.Context, ds *models.Dataset) (*models.GroundTruthSet, error) {
	return e.oracle.GroundTruth(ctx, ds, e.cfg.Experiment.K)
}

// Run executes every dataset against every backend configuration. Per-run
// failures become FAILED rows; only a ground-truth inconsistency, a dataset
// that cannot be generated or caller cancellation abort the experiment. The
// report is returned even when err is non-nil.
func (e *Experiment) Run(ctx context.Context) (*Report, error) {
	run := &models.ExperimentRun{ID: uuid.NewString(), Name: e.cfg.Name, Status: models.RunRunning}
	report := &Report{Run: run}
	if e.store != nil {
		if err := e.store.CreateRun(ctx, run); err != nil {
			return report, fmt.Errorf("create run: %w", err)
		}
	}
	logger := e.logger.With(zap.String("run", run.ID))
	logger.Info("Experiment started",
		zap.Int("datasets", len(e.cfg.Datasets)),
		zap.Int("backends", len(e.cfg.Backends)))

	var runErr error
	for _, dc := range e.cfg.Datasets {
		table, err := e.runDataset(ctx, dc, logger)
		if table != nil {
			report.Tables = append(report.Tables, table)
			run.Rows += len(table.Rows)
			run.FailedRows += table.Failed()
			if e.store != nil {
				if serr := e.store.SaveTable(context.WithoutCancel(ctx), run.ID, table); serr != nil {
					logger.Error("Failed to save table", zap.String("dataset", table.Dataset), zap.Error(serr))
				}
			}
		}
		if err != nil {
			runErr = err
			break
		}
	}

	run.Status = models.RunDone
	if runErr != nil {
		run.Status = models.RunFailed
		run.Error = runErr.Error()
	}
	if e.store != nil {
		if err := e.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Error("Failed to finish run", zap.Error(err))
		}
	}
	logger.Info("Experiment finished",
		zap.String("status", string(run.Status)),
		zap.Int("rows", run.Rows),
		zap.Int("failed_rows", run.FailedRows))
	return report, runErr
}

func (e *Experiment) runDataset(ctx context.Context, dc config.DatasetConfig, logger *zap.Logger) (*results.ComparisonTable, error) {
	ds, err := e.Dataset(ctx, dc)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", dc.Name, err)
	}
	truth, err := e.Truth(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("ground truth for %q: %w", ds.Name, err)
	}

	agg := results.NewAggregator(ds.Name, ds.Metric, e.cfg.Experiment.K)
	for _, bc := range e.cfg.Backends {
		for _, p := range bc.Configurations() {
			if err := ctx.Err(); err != nil {
				return agg.Table(), fmt.Errorf("%w: %w", models.ErrRunCancelled, err)
			}
			params := backend.Params(p)
			b, err := e.newBackend(bc.Type, backend.Connection(bc.ExpandedConnection()), logger)
			if err != nil {
				logger.Warn("Backend unavailable",
					zap.String("backend", bc.Name),
					zap.String("configuration", params.Label()),
					zap.Error(err))
				agg.AddFailure(bc.Name, params.Label(), err)
				continue
			}
			rc := RunnerConfig(e.cfg.Experiment, bc.Retry(e.cfg.Experiment.BuildRetry))
			res := runner.New(rc, logger).Run(ctx, b, params, ds)
			res.Backend = bc.Name
			if err := agg.Add(res, truth); err != nil {
				return agg.Table(), err
			}
			if errors.Is(res.Err, models.ErrRunCancelled) && ctx.Err() != nil {
				return agg.Table(), res.Err
			}
		}
	}
	return agg.Table(), nil
}

// RunnerConfig maps the experiment section onto the runner's limits.
func RunnerConfig(ec config.ExperimentConfig, retry config.RetryConfig) runner.Config {
	return runner.Config{
		K:                   ec.K,
		Trials:              ec.Trials,
		Concurrency:         ec.Concurrency,
		WarmupQueries:       ec.WarmupQueries,
		WarmupFailureBudget: ec.WarmupFailureBudget,
		QueryTimeout:        ec.QueryTimeout,
		ReadyTimeout:        ec.ReadyTimeout,
		ReadyPollInterval:   ec.ReadyPollInterval,
		RunTimeout:          ec.RunTimeout,
		TargetQPS:           ec.TargetQPS,
		Retry: runner.RetryPolicy{
			MaxAttempts:    retry.MaxAttempts,
			InitialBackoff: retry.InitialBackoff,
			MaxBackoff:     retry.MaxBackoff,
			Multiplier:     retry.Multiplier,
		},
	}
}

// Export writes every table to the configured CSV and JSON paths. With more
// than one dataset the dataset name is inserted before the file extension.
func Export(cfg config.ResultsConfig, tables []*results.ComparisonTable) error {
	outputs := []struct {
		path  string
		write func(io.Writer, *results.ComparisonTable) error
	}{
		{cfg.CSVPath, results.WriteCSV},
		{cfg.JSONPath, results.WriteJSON},
	}
	for _, out := range outputs {
		if out.path == "" {
			continue
		}
		for _, t := range tables {
			path := out.path
			if len(tables) > 1 {
				path = withSuffix(path, t.Dataset)
			}
			if err := results.WriteFile(path, t, out.write); err != nil {
				return err
			}
		}
	}
	return nil
}
