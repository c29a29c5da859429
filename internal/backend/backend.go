// Package backend defines the uniform capability interface every system under test
// implements, and the concrete adapters: an exact in-memory baseline, Qdrant,
// Weaviate and PostgreSQL/pgvector.
package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hyperjump/vecbench/internal/models"
)

// Handle is the run-scoped resource representing a built index. Each adapter
// defines its own concrete type; handles are never shared between runs.
type Handle interface {
	// BackendName returns the name of the adapter that created the handle.
	BackendName() string
}

// Backend is the capability set every backend under test provides.
type Backend interface {
	// Name returns the adapter type name (e.g. "qdrant").
	Name() string
	// Capabilities declares supported metrics and tuning parameters.
	Capabilities() Capabilities
	// Build constructs or opens an index over corpus. It fails with
	// models.ErrBackendUnavailable when the service cannot be reached and with
	// models.ErrConfigRejected when params are invalid. A non-nil handle may be
	// returned alongside an error so that Teardown can release partial resources.
	Build(ctx context.Context, corpus []models.Item, metric models.Metric, params Params) (Handle, error)
	// Ready reports whether ingestion has converged and the index can be measured.
	Ready(ctx context.Context, h Handle) (bool, error)
	// Query returns up to k nearest neighbors ordered by ascending distance. It
	// must not mutate index state.
	Query(ctx context.Context, h Handle, vec []float32, k int) ([]models.Neighbor, error)
	// Teardown releases every resource held by h. A nil handle is a no-op.
	Teardown(ctx context.Context, h Handle) error
}

// ParamKind is the expected type of a tuning parameter.
type ParamKind string

const (
	ParamInt      ParamKind = "int"
	ParamFloat    ParamKind = "float"
	ParamBool     ParamKind = "bool"
	ParamString   ParamKind = "string"
	ParamDuration ParamKind = "duration"
)

// Capabilities describes what a backend accepts.
type Capabilities struct {
	Metrics []models.Metric
	Params  map[string]ParamKind
	// Remote is true when the backend talks to an external service.
	Remote bool
	// EventuallyConsistent is true when ingestion completes asynchronously.
	EventuallyConsistent bool
}

// Validate checks metric support, unknown parameters and parameter types.
func (c Capabilities) Validate(metric models.Metric, params Params) error {
	if !slices.Contains(c.Metrics, metric) {
		return fmt.Errorf("%w: metric %q not supported", models.ErrConfigRejected, metric)
	}
	var unknown []string
	for key := range params {
		kind, ok := c.Params[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if err := params.check(key, kind); err != nil {
			return err
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("%w: unknown parameters: %s", models.ErrConfigRejected, strings.Join(unknown, ", "))
	}
	return nil
}

func handleAs[T Handle](h Handle, backend string) (T, error) {
	var zero T
	if h == nil {
		return zero, fmt.Errorf("%s: nil handle", backend)
	}
	t, ok := h.(T)
	if !ok {
		return zero, fmt.Errorf("%s: foreign handle from %s", backend, h.BackendName())
	}
	return t, nil
}
