package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `
name: cli-test
experiment:
  k: 5
  trials: 1
  ready_timeout: 5s
datasets:
  - name: tiny
    corpus_size: 200
    query_size: 10
    dimensions: 8
backends:
  - name: baseline
    type: memory
results:
  database_path: "./results.db"
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		outputFormat, noStore, failOnError, listRuns = "text", false, false, false
		configPath = defaultConfigPath
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	configPath := writeTestConfig(t)
	dir := filepath.Dir(configPath)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if cfg.Name != "cli-test" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	path := writeTestConfig(t)
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("resolved = %s, want %s", resolved, path)
	}
	if cfg.Experiment.K != 5 {
		t.Errorf("k = %d", cfg.Experiment.K)
	}
}

func TestLoadConfig_missing(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "vecbench version dev") {
		t.Errorf("got %q", out)
	}
}

func TestRunThenReport(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "run", "--config", path, "--format", "csv")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "backend,configuration,status") {
		t.Errorf("unexpected run output:\n%s", out)
	}
	if !strings.Contains(out, "baseline,default,OK") {
		t.Errorf("missing baseline row:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "results.db")); err != nil {
		t.Errorf("results database not created: %v", err)
	}

	out, err = execute(t, "report", "--config", path, "--format", "csv")
	if err != nil {
		t.Fatalf("report: %v\n%s", err, out)
	}
	if !strings.Contains(out, "baseline,default,OK") {
		t.Errorf("report missing baseline row:\n%s", out)
	}

	out, err = execute(t, "report", "--config", path, "--list")
	if err != nil {
		t.Fatalf("report --list: %v", err)
	}
	if !strings.Contains(out, "cli-test") {
		t.Errorf("run list missing run:\n%s", out)
	}
}

func TestTruthCommand(t *testing.T) {
	path := writeTestConfig(t)
	out, err := execute(t, "truth", "--config", path)
	if err != nil {
		t.Fatalf("truth: %v\n%s", err, out)
	}
	if !strings.Contains(out, "tiny") || !strings.Contains(out, "queries=10") {
		t.Errorf("unexpected truth output:\n%s", out)
	}
}

func TestRun_badFormat(t *testing.T) {
	path := writeTestConfig(t)
	if _, err := execute(t, "run", "--config", path, "--format", "xml"); err == nil {
		t.Fatal("expected error")
	}
}
