// Package results merges per-trial metrics into per-run records and assembles the
// comparison table, with CSV, JSON and terminal renderings.
package results

import (
	"slices"
	"time"

	"github.com/hyperjump/vecbench/internal/metrics"
	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/runner"
)

// Merge combines per-trial records: median of trials for latency and QPS, mean
// of trials for recall, NDCG and failure rate. Counts are summed. Trials without
// a successful query carry no latency and are left out of the latency medians.
func Merge(records []models.MetricRecord) models.MetricRecord {
	if len(records) == 0 {
		return models.MetricRecord{}
	}
	out := models.MetricRecord{
		Backend:       records[0].Backend,
		Configuration: records[0].Configuration,
		K:             records[0].K,
		Trials:        len(records),
	}
	mean := make([]time.Duration, 0, len(records))
	p50 := make([]time.Duration, 0, len(records))
	p95 := make([]time.Duration, 0, len(records))
	p99 := make([]time.Duration, 0, len(records))
	qps := make([]float64, len(records))
	for i, r := range records {
		out.Recall += r.Recall
		out.NDCG += r.NDCG
		out.FailureRate += r.FailureRate
		out.Successful += r.Successful
		out.Failed += r.Failed
		out.Incomplete += r.Incomplete
		if r.Successful > 0 {
			mean = append(mean, r.MeanLatency)
			p50 = append(p50, r.P50)
			p95 = append(p95, r.P95)
			p99 = append(p99, r.P99)
		}
		qps[i] = r.QPS
	}
	n := float64(len(records))
	out.Recall /= n
	out.NDCG /= n
	out.FailureRate /= n
	out.MeanLatency = medianDuration(mean)
	out.P50 = medianDuration(p50)
	out.P95 = medianDuration(p95)
	out.P99 = medianDuration(p99)
	out.QPS = median(qps)
	return out
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func medianDuration(ds []time.Duration) time.Duration {
	xs := make([]float64, len(ds))
	for i, d := range ds {
		xs[i] = float64(d)
	}
	return time.Duration(median(xs))
}

// Aggregator collects run results into a ComparisonTable in insertion order.
type Aggregator struct {
	table *ComparisonTable
}

// NewAggregator starts an empty table for dataset at k.
func NewAggregator(dataset string, metric models.Metric, k int) *Aggregator {
	return &Aggregator{table: &ComparisonTable{Dataset: dataset, Metric: metric, K: k}}
}

// Add scores every recorded trial of res against truth and appends one row.
// Failed runs become FAILED rows; trials recorded before the failure still
// contribute. Only a ground-truth inconsistency is returned as an error.
func (a *Aggregator) Add(res *runner.Result, truth *models.GroundTruthSet) error {
	records := make([]models.MetricRecord, 0, len(res.Trials))
	for _, trial := range res.Trials {
		rec, err := metrics.Collect(trial, truth, a.table.K)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	rec := Merge(records)
	rec.Backend = res.Backend
	rec.Configuration = res.Configuration
	rec.K = a.table.K
	rec.BuildTime = res.BuildTime

	row := Row{
		Backend:       res.Backend,
		Configuration: res.Configuration,
		Status:        StatusOK,
		Record:        rec,
	}
	if res.State == runner.StateFailed || res.Err != nil {
		row.Status = StatusFailed
		row.ErrorKind = models.ErrorKind(res.Err)
		if res.Err != nil {
			row.Error = res.Err.Error()
		}
	}
	a.table.Rows = append(a.table.Rows, row)
	return nil
}

// AddFailure appends a FAILED row for a run that never reached the runner,
// such as a backend that could not be constructed.
func (a *Aggregator) AddFailure(backend, configuration string, err error) {
	a.table.Rows = append(a.table.Rows, Row{
		Backend:       backend,
		Configuration: configuration,
		Status:        StatusFailed,
		ErrorKind:     models.ErrorKind(err),
		Error:         err.Error(),
		Record:        models.MetricRecord{Backend: backend, Configuration: configuration, K: a.table.K},
	})
}

// Table returns the table built so far.
func (a *Aggregator) Table() *ComparisonTable {
	return a.table
}
