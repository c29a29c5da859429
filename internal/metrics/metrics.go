// Package metrics reduces a trial's observations against ground truth into a
// MetricRecord.
package metrics

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/pkg/utils"
)

// Recall is |returned ∩ truth| / min(k, |truth|), both sides cut to k.
// Duplicate returned IDs count once.
func Recall(returned, truth []string, k int) float64 {
	if k <= 0 {
		return 0
	}
	truth = truth[:min(k, len(truth))]
	if len(truth) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(truth))
	for _, id := range truth {
		want[id] = struct{}{}
	}
	hits := 0
	for _, id := range returned[:min(k, len(returned))] {
		if _, ok := want[id]; ok {
			hits++
			delete(want, id)
		}
	}
	return float64(hits) / float64(len(truth))
}

// NDCG is the normalized discounted cumulative gain at k with binary relevance.
func NDCG(returned, truth []string, k int) float64 {
	if k <= 0 {
		return 0
	}
	truth = truth[:min(k, len(truth))]
	if len(truth) == 0 {
		return 0
	}
	relevant := make(map[string]struct{}, len(truth))
	for _, id := range truth {
		relevant[id] = struct{}{}
	}
	var dcg, idcg float64
	for i, id := range returned[:min(k, len(returned))] {
		if _, ok := relevant[id]; ok {
			dcg += 1 / math.Log2(float64(i+2))
			delete(relevant, id)
		}
	}
	for i := range truth {
		idcg += 1 / math.Log2(float64(i+2))
	}
	return utils.Clamp01(dcg / idcg)
}

// Percentile returns the nearest-rank p-th percentile (0 < p ≤ 100) of sorted.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}

// Mean returns the arithmetic mean of ds, or 0 for an empty slice.
func Mean(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum float64
	for _, d := range ds {
		sum += float64(d)
	}
	return time.Duration(sum / float64(len(ds)))
}

// Collect scores one trial. Latency statistics, recall and NDCG use successful
// observations only; failure rate is failed / issued, where incomplete
// observations were never issued.
func Collect(trial models.Trial, truth *models.GroundTruthSet, k int) (models.MetricRecord, error) {
	rec := models.MetricRecord{Trials: 1, K: k}
	if truth == nil || len(truth.Neighbors) != len(trial.Observations) {
		n := 0
		if truth != nil {
			n = len(truth.Neighbors)
		}
		return rec, fmt.Errorf("%w: %d observations for %d ground-truth queries",
			models.ErrGroundTruthInconsistency, len(trial.Observations), n)
	}
	if truth.K() < k {
		return rec, fmt.Errorf("%w: ground truth computed for k=%d, scoring k=%d",
			models.ErrGroundTruthInconsistency, truth.K(), k)
	}

	latencies := make([]time.Duration, 0, len(trial.Observations))
	var recallSum, ndcgSum float64
	for i := range trial.Observations {
		o := &trial.Observations[i]
		if o.Backend != "" && rec.Backend == "" {
			rec.Backend, rec.Configuration = o.Backend, o.Configuration
		}
		switch {
		case o.Incomplete:
			rec.Incomplete++
			continue
		case o.Failed:
			rec.Failed++
			continue
		}
		rec.Successful++
		latencies = append(latencies, o.Latency)
		returned := models.NeighborIDs(o.Neighbors)
		want := truth.IDs(i)
		recallSum += Recall(returned, want, k)
		ndcgSum += NDCG(returned, want, k)
	}

	if rec.Successful > 0 {
		rec.Recall = recallSum / float64(rec.Successful)
		rec.NDCG = ndcgSum / float64(rec.Successful)
	}
	if issued := rec.Successful + rec.Failed; issued > 0 {
		rec.FailureRate = float64(rec.Failed) / float64(issued)
	}
	if trial.Span > 0 {
		rec.QPS = float64(rec.Successful) / trial.Span.Seconds()
	}
	slices.Sort(latencies)
	rec.MeanLatency = Mean(latencies)
	rec.P50 = Percentile(latencies, 50)
	rec.P95 = Percentile(latencies, 95)
	rec.P99 = Percentile(latencies, 99)
	return rec, nil
}
