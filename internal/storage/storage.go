// Package storage persists experiment runs and their comparison tables.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/results"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines run and result persistence operations.
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *models.ExperimentRun) error
	FinishRun(ctx context.Context, run *models.ExperimentRun) error
	GetRun(ctx context.Context, id string) (*models.ExperimentRun, error)
	ListRuns(ctx context.Context, offset, limit int) ([]*models.ExperimentRun, error)
	DeleteRun(ctx context.Context, id string) error

	// Result operations
	SaveTable(ctx context.Context, runID string, table *results.ComparisonTable) error
	GetTables(ctx context.Context, runID string) ([]*results.ComparisonTable, error)

	// Stats
	CountRuns(ctx context.Context) (int64, error)

	Close() error
}
