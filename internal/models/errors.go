package models

import "errors"

var (
	// ErrConfigRejected means the parameters are invalid for a backend. Fatal to that run.
	ErrConfigRejected = errors.New("config rejected")
	// ErrBackendUnavailable means the backend could not be reached. Fatal to that run.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrIngestionTimeout means the index never reached the ready state. Fatal to that run.
	ErrIngestionTimeout = errors.New("ingestion timeout")
	// ErrQueryFailure marks a single failed query, or exhausted warm-up budget.
	ErrQueryFailure = errors.New("query failure")
	// ErrGroundTruthInconsistency means the dataset cannot be scored. Fatal to the experiment.
	ErrGroundTruthInconsistency = errors.New("ground truth inconsistency")
	// ErrRunCancelled means the run-level timeout expired or the caller cancelled.
	ErrRunCancelled = errors.New("run cancelled")
)

// ErrorKind returns the taxonomy name of err, or "Error" for unclassified errors
// and "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigRejected):
		return "ConfigRejected"
	case errors.Is(err, ErrBackendUnavailable):
		return "BackendUnavailable"
	case errors.Is(err, ErrIngestionTimeout):
		return "IngestionTimeout"
	case errors.Is(err, ErrQueryFailure):
		return "QueryFailure"
	case errors.Is(err, ErrGroundTruthInconsistency):
		return "GroundTruthInconsistency"
	case errors.Is(err, ErrRunCancelled):
		return "RunCancelled"
	default:
		return "Error"
	}
}
