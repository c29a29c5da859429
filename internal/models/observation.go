package models

import (
	"math"
	"time"
)

// FailedLatency is the sentinel latency recorded for failed or unissued queries.
const FailedLatency = time.Duration(math.MaxInt64)

// Observation is one query's outcome within a trial.
type Observation struct {
	Backend       string        `json:"backend"`
	Configuration string        `json:"configuration"`
	Trial         int           `json:"trial"`
	QueryIndex    int           `json:"query_index"`
	QueryID       string        `json:"query_id"`
	Latency       time.Duration `json:"latency_ns"`
	Neighbors     []Neighbor    `json:"neighbors,omitempty"`
	// Failed marks an error or per-query timeout. Latency is FailedLatency.
	Failed bool `json:"failed,omitempty"`
	// Incomplete marks a query that was never issued because the run was cancelled.
	Incomplete bool   `json:"incomplete,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Succeeded reports whether the observation carries a usable result.
func (o *Observation) Succeeded() bool {
	return !o.Failed && !o.Incomplete
}

// Trial is the raw outcome of one WARMUP→MEASURING repetition.
type Trial struct {
	Number       int           `json:"number"`
	Observations []Observation `json:"observations"`
	// Span is the wall-clock duration of the measuring phase.
	Span           time.Duration `json:"span_ns"`
	WarmupFailures int           `json:"warmup_failures"`
	// Incomplete is set when the trial was cut short by cancellation.
	Incomplete bool `json:"incomplete,omitempty"`
}
