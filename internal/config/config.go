// Package config provides configuration loading and structs for vecbench experiments.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds a full experiment definition.
type Config struct {
	Name        string            `yaml:"name"`
	Debug       bool              `yaml:"debug"`
	LogLevel    string            `yaml:"log_level"`
	Experiment  ExperimentConfig  `yaml:"experiment"`
	Datasets    []DatasetConfig   `yaml:"datasets"`
	Backends    []BackendConfig   `yaml:"backends"`
	GroundTruth GroundTruthConfig `yaml:"ground_truth"`
	Results     ResultsConfig     `yaml:"results"`
	Server      ServerConfig      `yaml:"server"`
}

// ExperimentConfig holds run limits shared by every backend.
type ExperimentConfig struct {
	K                   int           `yaml:"k"`
	Trials              int           `yaml:"trials"`
	Concurrency         int           `yaml:"concurrency"`
	WarmupQueries       int           `yaml:"warmup_queries"`
	WarmupFailureBudget int           `yaml:"warmup_failure_budget"`
	QueryTimeout        time.Duration `yaml:"query_timeout"`
	ReadyTimeout        time.Duration `yaml:"ready_timeout"`
	ReadyPollInterval   time.Duration `yaml:"ready_poll_interval"`
	RunTimeout          time.Duration `yaml:"run_timeout"`
	TargetQPS           float64       `yaml:"target_qps"`
	BuildRetry          RetryConfig   `yaml:"build_retry"`
}

// RetryConfig bounds Build retries on an unavailable backend.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

// DatasetConfig describes a synthetic dataset.
type DatasetConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	CorpusSize int    `yaml:"corpus_size"`
	QuerySize  int    `yaml:"query_size"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"`
	Seed       int64  `yaml:"seed"`
	Clusters   int    `yaml:"clusters"`
	Normalize  bool   `yaml:"normalize"`
}

// BackendConfig describes one backend under test and its parameter grid.
type BackendConfig struct {
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	Connection map[string]string `yaml:"connection"`
	Params     map[string]any    `yaml:"params"`
	// Grid lists alternative values per parameter; each combination is one configuration.
	Grid map[string][]any `yaml:"grid"`
	// BuildRetry overrides experiment.build_retry when set.
	BuildRetry *RetryConfig `yaml:"build_retry"`
}

// GroundTruthConfig holds oracle settings.
type GroundTruthConfig struct {
	CacheDir string `yaml:"cache_dir"`
	Workers  int    `yaml:"workers"`
}

// ResultsConfig holds output paths. Empty paths disable that output.
type ResultsConfig struct {
	DatabasePath string `yaml:"database_path"`
	CSVPath      string `yaml:"csv_path"`
	JSONPath     string `yaml:"json_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads and parses the config file at path, loads .env files, expands
// paths, applies defaults and validates. Returns an error if the file cannot be
// read or parsed, or if the definition is invalid.
func Load(path string) (*Config, error) {
	LoadEnv(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.GroundTruth.CacheDir = expandPath(cfg.GroundTruth.CacheDir, configDir)
	cfg.Results.DatabasePath = expandPath(cfg.Results.DatabasePath, configDir)
	cfg.Results.CSVPath = expandPath(cfg.Results.CSVPath, configDir)
	cfg.Results.JSONPath = expandPath(cfg.Results.JSONPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads .env from configDir and the working directory. Variables
// already set in the environment are never overridden.
func LoadEnv(configDir string) {
	seen := map[string]bool{}
	for _, p := range []string{filepath.Join(configDir, ".env"), ".env"} {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err == nil {
			_ = godotenv.Load(abs)
		}
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ExpandedConnection returns the connection settings with ${VAR} references resolved.
func (b *BackendConfig) ExpandedConnection() map[string]string {
	out := make(map[string]string, len(b.Connection))
	for k, v := range b.Connection {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

// Retry returns the backend's retry override, or the experiment default.
func (b *BackendConfig) Retry(def RetryConfig) RetryConfig {
	if b.BuildRetry != nil {
		return *b.BuildRetry
	}
	return def
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
