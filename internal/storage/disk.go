package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the benchmark's persistent state.
type Usage struct {
	ResultsBytes    int64 `json:"results_bytes"`
	TruthCacheBytes int64 `json:"truth_cache_bytes"`
}

// MeasureUsage sums the results database (with its WAL side files) and the
// ground-truth cache directory. Missing paths count as zero.
func MeasureUsage(dbPath, cacheDir string) (Usage, error) {
	var u Usage
	var err error
	if dbPath != "" {
		if u.ResultsBytes, err = sizeOf(dbPath, dbPath+"-wal", dbPath+"-shm"); err != nil {
			return u, err
		}
	}
	if cacheDir != "" {
		if u.TruthCacheBytes, err = sizeOf(cacheDir); err != nil {
			return u, err
		}
	}
	return u, nil
}

func sizeOf(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
