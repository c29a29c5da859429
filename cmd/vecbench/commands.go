package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/vecbench/internal/cli"
	"github.com/hyperjump/vecbench/internal/config"
	"github.com/hyperjump/vecbench/internal/experiment"
	"github.com/hyperjump/vecbench/internal/groundtruth"
	"github.com/hyperjump/vecbench/internal/server"
	"github.com/hyperjump/vecbench/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	outputFormat string
	noStore      bool
	failOnError  bool
	listRuns     bool
	listLimit    int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the experiment",
	Long: `Run every backend configuration against every dataset and print one
comparison table per dataset. Failed runs appear as FAILED rows; the command
only fails on a ground-truth inconsistency or interruption, unless
--fail-on-error is set.

Example:
  vecbench run --config bench.yaml --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(outputFormat)
		if err != nil {
			return err
		}
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := []experiment.Option{experiment.WithLogger(logger)}
		if !noStore && cfg.Results.DatabasePath != "" {
			store, err := storage.NewSQLiteStorage(cfg.Results.DatabasePath)
			if err != nil {
				return fmt.Errorf("open results database: %w", err)
			}
			defer store.Close()
			opts = append(opts, experiment.WithStorage(store))
		}

		exp, err := experiment.New(cfg, opts...)
		if err != nil {
			return err
		}
		defer exp.Close()

		report, runErr := exp.Run(ctx)
		if err := experiment.Export(cfg.Results, report.Tables); err != nil {
			logger.Error("Export failed", zap.Error(err))
		}
		out := cmd.OutOrStdout()
		if err := cli.WriteTables(out, report.Tables, format); err != nil {
			return err
		}
		if format == cli.OutputText {
			cli.WriteRunSummary(out, report.Run)
		}
		if runErr != nil {
			return runErr
		}
		if failOnError && report.Run.FailedRows > 0 {
			return fmt.Errorf("%d of %d runs failed", report.Run.FailedRows, report.Run.Rows)
		}
		return nil
	},
}

var truthCmd = &cobra.Command{
	Use:   "truth",
	Short: "Precompute ground truth for every dataset",
	Long: `Generate every dataset and compute its exact top-k neighbors. With
ground_truth.cache_dir set the results are cached for later runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(outputFormat)
		if err != nil {
			return err
		}
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exp, err := experiment.New(cfg, experiment.WithLogger(logger))
		if err != nil {
			return err
		}
		defer exp.Close()

		sums := make([]cli.TruthSummary, 0, len(cfg.Datasets))
		for _, dc := range cfg.Datasets {
			ds, err := exp.Dataset(ctx, dc)
			if err != nil {
				return fmt.Errorf("dataset %q: %w", dc.Name, err)
			}
			start := time.Now()
			gt, err := exp.Truth(ctx, ds)
			if err != nil {
				return fmt.Errorf("ground truth for %q: %w", ds.Name, err)
			}
			sums = append(sums, cli.TruthSummary{
				Dataset: ds.Name,
				Key:     groundtruth.KeyFor(ds, gt.K()).String(),
				Queries: len(gt.Neighbors),
				K:       gt.K(),
				Elapsed: time.Since(start),
			})
		}
		return cli.WriteTruthSummaries(cmd.OutOrStdout(), sums, format)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Render a stored run",
	Long: `Render the comparison tables of a stored run. Without a run id the most
recent run is shown. Use --list to list stored runs instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(outputFormat)
		if err != nil {
			return err
		}
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if listRuns {
			runs, err := store.ListRuns(ctx, 0, listLimit)
			if err != nil {
				return err
			}
			return cli.WriteRuns(out, runs, format)
		}

		var id string
		if len(args) == 1 {
			id = args[0]
		} else {
			runs, err := store.ListRuns(ctx, 0, 1)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return errors.New("no runs recorded")
			}
			id = runs[0].ID
		}
		run, err := store.GetRun(ctx, id)
		if err != nil {
			return err
		}
		tables, err := store.GetTables(ctx, id)
		if err != nil {
			return err
		}
		if err := cli.WriteTables(out, tables, format); err != nil {
			return err
		}
		if format == cli.OutputText {
			cli.WriteRunSummary(out, run)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		srv := server.NewServer(store, &cfg.Server, cfg.Results.DatabasePath, cfg.GroundTruth.CacheDir, logger)
		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case <-sigChan:
		}

		logger.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, truthCmd, reportCmd} {
		c.Flags().StringVarP(&outputFormat, "format", "f", "text", "output format: text, json or csv")
	}
	runCmd.Flags().BoolVar(&noStore, "no-store", false, "do not record the run in the results database")
	runCmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any run failed")
	reportCmd.Flags().BoolVar(&listRuns, "list", false, "list stored runs")
	reportCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum runs to list")
}

func openStore(cfg *config.Config) (*storage.SQLiteStorage, error) {
	if cfg.Results.DatabasePath == "" {
		return nil, errors.New("results.database_path is not configured")
	}
	store, err := storage.NewSQLiteStorage(cfg.Results.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open results database: %w", err)
	}
	return store, nil
}
