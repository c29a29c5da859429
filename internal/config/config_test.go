package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/vecbench/internal/models"
)

const minimal = `
datasets:
  - name: small
    corpus_size: 100
    query_size: 10
    dimensions: 8
backends:
  - type: memory
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name: nightly
server:
  host: "127.0.0.1"
  port: 9000
experiment:
  k: 20
  trials: 2
  concurrency: 4
  query_timeout: 250ms
  ready_timeout: 2m
datasets:
  - name: clustered-1k
    kind: clustered
    corpus_size: 1000
    query_size: 50
    dimensions: 32
    metric: euclidean
    clusters: 8
backends:
  - name: qdrant-hnsw
    type: qdrant
    connection:
      host: qdrant.local
    params:
      m: 16
    grid:
      ef: [64, 128]
results:
  database_path: "./results.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "nightly" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	e := cfg.Experiment
	if e.K != 20 || e.Trials != 2 || e.Concurrency != 4 {
		t.Errorf("unexpected experiment config: %+v", e)
	}
	if e.QueryTimeout != 250*time.Millisecond || e.ReadyTimeout != 2*time.Minute {
		t.Errorf("durations not decoded: %v %v", e.QueryTimeout, e.ReadyTimeout)
	}
	if e.BuildRetry.MaxAttempts != 3 {
		t.Errorf("build retry default not applied: %+v", e.BuildRetry)
	}
	if got := cfg.Datasets[0]; got.Kind != "clustered" || got.Metric != "euclidean" || got.Clusters != 8 {
		t.Errorf("unexpected dataset: %+v", got)
	}
	if got := cfg.Results.DatabasePath; got != filepath.Join(dir, "results.db") {
		t.Errorf("database_path = %q", got)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), minimal))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Experiment.K != 10 || cfg.Experiment.Trials != 3 || cfg.Experiment.Concurrency != 1 {
		t.Errorf("experiment defaults: %+v", cfg.Experiment)
	}
	d := cfg.Datasets[0]
	if d.Kind != "uniform" || d.Metric != "cosine" || d.Seed != 42 {
		t.Errorf("dataset defaults: %+v", d)
	}
	if cfg.Backends[0].Name != "memory" {
		t.Errorf("backend name should default to type, got %q", cfg.Backends[0].Name)
	}
	if cfg.GroundTruth.Workers < 1 {
		t.Errorf("workers = %d", cfg.GroundTruth.Workers)
	}
	if cfg.Results.CSVPath != "" {
		t.Errorf("csv path should stay empty, got %q", cfg.Results.CSVPath)
	}
}

func TestLoad_rejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no datasets": `
backends:
  - type: memory
`,
		"bad metric": `
datasets:
  - corpus_size: 10
    query_size: 1
    dimensions: 2
    metric: hamming
backends:
  - type: memory
`,
		"empty grid": `
datasets:
  - corpus_size: 10
    query_size: 1
    dimensions: 2
backends:
  - type: memory
    grid:
      ef: []
`,
		"duplicate backend": `
datasets:
  - corpus_size: 10
    query_size: 1
    dimensions: 2
backends:
  - type: memory
  - type: memory
`,
		"negative trials": minimal + `
experiment:
  trials: -1
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), content))
			if !errors.Is(err, models.ErrConfigRejected) {
				t.Fatalf("want ErrConfigRejected, got %v", err)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_envFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("VECBENCH_TEST_QDRANT_HOST=envhost\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("VECBENCH_TEST_QDRANT_HOST") })

	cfg, err := Load(writeConfig(t, dir, `
datasets:
  - corpus_size: 10
    query_size: 1
    dimensions: 2
backends:
  - type: qdrant
    connection:
      host: ${VECBENCH_TEST_QDRANT_HOST}
`))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Backends[0].ExpandedConnection()["host"]; got != "envhost" {
		t.Errorf("host = %q, want envhost", got)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, minimal+`
ground_truth:
  cache_dir: "./truth"
results:
  csv_path: "./out/results.csv"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GroundTruth.CacheDir != filepath.Join(dir, "truth") {
		t.Errorf("cache_dir = %q", cfg.GroundTruth.CacheDir)
	}
	if cfg.Results.CSVPath != filepath.Join(dir, "out", "results.csv") {
		t.Errorf("csv_path = %q", cfg.Results.CSVPath)
	}
}

func TestExpandPath(t *testing.T) {
	if got := expandPath("/abs/x", "/cfg"); got != "/abs/x" {
		t.Errorf("absolute path changed: %q", got)
	}
	if got := expandPath("", "/cfg"); got != "" {
		t.Errorf("empty path changed: %q", got)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandPath("vecbench/cache", "/cfg"); got != filepath.Join(home, "vecbench/cache") {
		t.Errorf("home-relative path = %q", got)
	}
}

func TestConfigurations(t *testing.T) {
	b := BackendConfig{
		Params: map[string]any{"m": 16},
		Grid: map[string][]any{
			"ef":    {64, 128},
			"exact": {false, true},
		},
	}
	got := b.Configurations()
	want := []map[string]any{
		{"m": 16, "ef": 64, "exact": false},
		{"m": 16, "ef": 64, "exact": true},
		{"m": 16, "ef": 128, "exact": false},
		{"m": 16, "ef": 128, "exact": true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Configurations() = %v, want %v", got, want)
	}
}

func TestConfigurations_noGrid(t *testing.T) {
	b := BackendConfig{Params: map[string]any{"m": 16}}
	got := b.Configurations()
	if len(got) != 1 || got[0]["m"] != 16 {
		t.Fatalf("Configurations() = %v", got)
	}
	got[0]["m"] = 32
	if b.Params["m"] != 16 {
		t.Error("configurations must not alias params")
	}
}

func TestRetry_override(t *testing.T) {
	def := RetryConfig{MaxAttempts: 3}
	b := BackendConfig{}
	if b.Retry(def).MaxAttempts != 3 {
		t.Error("expected default retry")
	}
	b.BuildRetry = &RetryConfig{MaxAttempts: 1}
	if b.Retry(def).MaxAttempts != 1 {
		t.Error("expected override")
	}
}

func TestSave_roundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, minimal))
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "saved.yaml")
	if err := Save(out, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "corpus_size: 100") {
		t.Errorf("saved config missing dataset:\n%s", data)
	}
}
