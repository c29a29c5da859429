package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMeasureUsage(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "results.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := filepath.Join(dir, "truth")
	sub := filepath.Join(cache, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cache, "a"), []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b"), []byte("d"), 0644); err != nil {
		t.Fatal(err)
	}

	u, err := MeasureUsage(db, cache)
	if err != nil {
		t.Fatal(err)
	}
	if u.ResultsBytes != 7 {
		t.Errorf("results: got %d bytes, want 7", u.ResultsBytes)
	}
	if u.TruthCacheBytes != 4 {
		t.Errorf("truth cache: got %d bytes, want 4", u.TruthCacheBytes)
	}
}

func TestMeasureUsage_MissingPaths(t *testing.T) {
	dir := t.TempDir()
	u, err := MeasureUsage(filepath.Join(dir, "none.db"), filepath.Join(dir, "none"))
	if err != nil {
		t.Fatal(err)
	}
	if u.ResultsBytes != 0 || u.TruthCacheBytes != 0 {
		t.Errorf("expected zero usage, got %+v", u)
	}

	u, err = MeasureUsage("", "")
	if err != nil {
		t.Fatal(err)
	}
	if u != (Usage{}) {
		t.Errorf("expected zero usage, got %+v", u)
	}
}
