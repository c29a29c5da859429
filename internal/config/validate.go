package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/vecbench/internal/models"
)

// Validate checks a loaded definition. Every problem is reported, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	e := c.Experiment
	if e.K <= 0 {
		add("experiment.k must be positive")
	}
	if e.Trials <= 0 {
		add("experiment.trials must be positive")
	}
	if e.Concurrency <= 0 {
		add("experiment.concurrency must be positive")
	}
	if e.WarmupQueries < 0 || e.WarmupFailureBudget < 0 {
		add("experiment warm-up settings must not be negative")
	}
	if e.ReadyTimeout <= 0 || e.ReadyPollInterval <= 0 {
		add("experiment.ready_timeout and ready_poll_interval must be positive")
	}
	if e.QueryTimeout < 0 || e.RunTimeout < 0 {
		add("experiment timeouts must not be negative")
	}
	if e.TargetQPS < 0 {
		add("experiment.target_qps must not be negative")
	}
	if err := e.BuildRetry.validate(); err != nil {
		add("experiment.build_retry: %v", err)
	}

	if len(c.Datasets) == 0 {
		add("at least one dataset is required")
	}
	datasets := map[string]bool{}
	for i, d := range c.Datasets {
		if datasets[d.Name] {
			add("datasets[%d]: duplicate name %q", i, d.Name)
		}
		datasets[d.Name] = true
		if d.CorpusSize <= 0 || d.QuerySize <= 0 || d.Dimensions <= 0 {
			add("datasets[%d] %q: corpus_size, query_size and dimensions must be positive", i, d.Name)
		}
		if _, err := models.ParseMetric(d.Metric); err != nil {
			add("datasets[%d] %q: %v", i, d.Name, err)
		}
	}

	if len(c.Backends) == 0 {
		add("at least one backend is required")
	}
	backends := map[string]bool{}
	for i, b := range c.Backends {
		if b.Type == "" {
			add("backends[%d]: type is required", i)
		}
		if backends[b.Name] {
			add("backends[%d]: duplicate name %q", i, b.Name)
		}
		backends[b.Name] = true
		for key, values := range b.Grid {
			if len(values) == 0 {
				add("backends[%d] %q: grid %q has no values", i, b.Name, key)
			}
		}
		if b.BuildRetry != nil {
			if err := b.BuildRetry.validate(); err != nil {
				add("backends[%d] %q build_retry: %v", i, b.Name, err)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", models.ErrConfigRejected, errors.Join(errs...))
}

func (r RetryConfig) validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if r.InitialBackoff < 0 || r.MaxBackoff < 0 {
		return fmt.Errorf("backoff must not be negative")
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1")
	}
	return nil
}

// Configurations expands params and grid into the ordered list of parameter
// sets to run. Grid keys vary in sorted order with the last key fastest; grid
// values override params. With no grid the result is params alone.
func (b *BackendConfig) Configurations() []map[string]any {
	keys := make([]string, 0, len(b.Grid))
	for k := range b.Grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]any{cloneParams(b.Params)}
	for _, k := range keys {
		next := make([]map[string]any, 0, len(out)*len(b.Grid[k]))
		for _, base := range out {
			for _, v := range b.Grid[k] {
				p := cloneParams(base)
				p[k] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

func cloneParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
