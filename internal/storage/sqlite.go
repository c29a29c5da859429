package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/results"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS result_rows (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		dataset TEXT NOT NULL,
		metric TEXT NOT NULL,
		k INTEGER NOT NULL,
		backend TEXT NOT NULL,
		configuration TEXT NOT NULL,
		status TEXT NOT NULL,
		error_kind TEXT,
		error TEXT,
		record TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_rows_run_dataset ON result_rows(run_id, dataset);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateRun inserts a run. StartedAt defaults to now.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *models.ExperimentRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = models.RunRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, status, error, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Name, string(run.Status), run.Error, run.StartedAt,
	)
	return err
}

// FinishRun records the final status of a run. FinishedAt defaults to now.
func (s *SQLiteStorage) FinishRun(ctx context.Context, run *models.ExperimentRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Error, run.FinishedAt, run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

const runColumns = `r.id, r.name, r.status, COALESCE(r.error, ''), r.started_at, r.finished_at,
	(SELECT COUNT(*) FROM result_rows w WHERE w.run_id = r.id),
	(SELECT COUNT(*) FROM result_rows w WHERE w.run_id = r.id AND w.status = 'FAILED')`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.ExperimentRun, error) {
	var run models.ExperimentRun
	var status string
	var finished sql.NullTime
	if err := sc.Scan(&run.ID, &run.Name, &status, &run.Error, &run.StartedAt, &finished, &run.Rows, &run.FailedRows); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// GetRun returns a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*models.ExperimentRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first with offset and limit.
func (s *SQLiteStorage) ListRuns(ctx context.Context, offset, limit int) ([]*models.ExperimentRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.ExperimentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its rows.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveTable appends the rows of table to a run in a transaction.
func (s *SQLiteStorage) SaveTable(ctx context.Context, runID string, table *results.ComparisonTable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM result_rows WHERE run_id = ?`, runID,
	).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO result_rows (run_id, seq, dataset, metric, k, backend, configuration, status, error_kind, error, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range table.Rows {
		recordJSON, err := json.Marshal(row.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, next+i, table.Dataset, string(table.Metric), table.K,
			row.Backend, row.Configuration, string(row.Status), row.ErrorKind, row.Error, string(recordJSON),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTables rebuilds the comparison tables of a run, one per dataset, in the
// order they were saved.
func (s *SQLiteStorage) GetTables(ctx context.Context, runID string) ([]*results.ComparisonTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset, metric, k, backend, configuration, status, COALESCE(error_kind, ''), COALESCE(error, ''), record
		 FROM result_rows WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*results.ComparisonTable
	byDataset := map[string]*results.ComparisonTable{}
	for rows.Next() {
		var (
			dataset, metric, status, recordJSON string
			k                                   int
			row                                 results.Row
		)
		if err := rows.Scan(&dataset, &metric, &k, &row.Backend, &row.Configuration, &status, &row.ErrorKind, &row.Error, &recordJSON); err != nil {
			return nil, err
		}
		row.Status = results.Status(status)
		if err := json.Unmarshal([]byte(recordJSON), &row.Record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		t, ok := byDataset[dataset]
		if !ok {
			t = &results.ComparisonTable{Dataset: dataset, Metric: models.Metric(metric), K: k}
			byDataset[dataset] = t
			tables = append(tables, t)
		}
		t.Rows = append(t.Rows, row)
	}
	return tables, rows.Err()
}

// CountRuns returns the total number of runs.
func (s *SQLiteStorage) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
