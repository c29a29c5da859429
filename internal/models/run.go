package models

import "time"

// RunStatus is the lifecycle of one experiment invocation.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

// ExperimentRun describes one invocation of an experiment definition.
type ExperimentRun struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Rows       int       `json:"rows"`
	FailedRows int       `json:"failed_rows"`
}
