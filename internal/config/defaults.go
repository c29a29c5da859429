package config

import (
	"runtime"
	"time"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "vecbench"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	e := &cfg.Experiment
	if e.K == 0 {
		e.K = 10
	}
	if e.Trials == 0 {
		e.Trials = 3
	}
	if e.Concurrency == 0 {
		e.Concurrency = 1
	}
	if e.QueryTimeout == 0 {
		e.QueryTimeout = 10 * time.Second
	}
	if e.ReadyTimeout == 0 {
		e.ReadyTimeout = 5 * time.Minute
	}
	if e.ReadyPollInterval == 0 {
		e.ReadyPollInterval = time.Second
	}
	applyRetryDefaults(&e.BuildRetry)
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.Name == "" {
			b.Name = b.Type
		}
		if b.BuildRetry != nil {
			applyRetryDefaults(b.BuildRetry)
		}
	}

	for i := range cfg.Datasets {
		d := &cfg.Datasets[i]
		if d.Kind == "" {
			d.Kind = "uniform"
		}
		if d.Metric == "" {
			d.Metric = "cosine"
		}
		if d.Dimensions == 0 {
			d.Dimensions = 128
		}
		if d.Seed == 0 {
			d.Seed = 42
		}
		if d.Name == "" {
			d.Name = d.Kind
		}
	}

	if cfg.GroundTruth.Workers == 0 {
		cfg.GroundTruth.Workers = runtime.GOMAXPROCS(0)
	}
}

func applyRetryDefaults(r *RetryConfig) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialBackoff == 0 {
		r.InitialBackoff = time.Second
	}
	if r.MaxBackoff == 0 {
		r.MaxBackoff = 30 * time.Second
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2
	}
}
