package models

import "time"

// MetricRecord is the reduced form of one trial, or of several trials once merged.
type MetricRecord struct {
	Backend       string        `json:"backend"`
	Configuration string        `json:"configuration"`
	Trials        int           `json:"trials"`
	K             int           `json:"k"`
	Recall        float64       `json:"recall"`
	NDCG          float64       `json:"ndcg"`
	MeanLatency   time.Duration `json:"mean_latency_ns"`
	P50           time.Duration `json:"p50_ns"`
	P95           time.Duration `json:"p95_ns"`
	P99           time.Duration `json:"p99_ns"`
	QPS           float64       `json:"qps"`
	FailureRate   float64       `json:"failure_rate"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	Incomplete    int           `json:"incomplete"`
	BuildTime     time.Duration `json:"build_time_ns"`
}
