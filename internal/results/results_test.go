package results

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/runner"
)

func TestMerge(t *testing.T) {
	recs := []models.MetricRecord{
		{Backend: "memory", K: 10, Recall: 1.0, NDCG: 1.0, FailureRate: 0, QPS: 100, P50: 1 * time.Millisecond, P95: 4 * time.Millisecond, P99: 9 * time.Millisecond, MeanLatency: 2 * time.Millisecond, Successful: 10},
		{Backend: "memory", K: 10, Recall: 0.5, NDCG: 0.4, FailureRate: 0.3, QPS: 300, P50: 3 * time.Millisecond, P95: 5 * time.Millisecond, P99: 7 * time.Millisecond, MeanLatency: 4 * time.Millisecond, Successful: 7, Failed: 3},
		{Backend: "memory", K: 10, Recall: 0.9, NDCG: 0.7, FailureRate: 0, QPS: 200, P50: 2 * time.Millisecond, P95: 6 * time.Millisecond, P99: 8 * time.Millisecond, MeanLatency: 3 * time.Millisecond, Successful: 10},
	}
	got := Merge(recs)

	assert.Equal(t, 3, got.Trials)
	assert.InDelta(t, 0.8, got.Recall, 1e-12)
	assert.InDelta(t, 0.7, got.NDCG, 1e-12)
	assert.InDelta(t, 0.1, got.FailureRate, 1e-12)
	assert.Equal(t, 200.0, got.QPS)
	assert.Equal(t, 2*time.Millisecond, got.P50)
	assert.Equal(t, 5*time.Millisecond, got.P95)
	assert.Equal(t, 8*time.Millisecond, got.P99)
	assert.Equal(t, 3*time.Millisecond, got.MeanLatency)
	assert.Equal(t, 27, got.Successful)
	assert.Equal(t, 3, got.Failed)

	assert.Equal(t, models.MetricRecord{}, Merge(nil))
}

func TestMerge_IgnoresLatencyOfTrialsWithoutSuccess(t *testing.T) {
	recs := []models.MetricRecord{
		{Backend: "weaviate", K: 10, Recall: 1.0, QPS: 100, P50: 2 * time.Millisecond, P95: 6 * time.Millisecond, P99: 10 * time.Millisecond, MeanLatency: 3 * time.Millisecond, Successful: 10},
		{Backend: "weaviate", K: 10, FailureRate: 1, Failed: 10},
		{Backend: "weaviate", K: 10, Recall: 1.0, QPS: 200, P50: 4 * time.Millisecond, P95: 8 * time.Millisecond, P99: 12 * time.Millisecond, MeanLatency: 5 * time.Millisecond, Successful: 10},
	}
	got := Merge(recs)

	assert.Equal(t, 3*time.Millisecond, got.P50)
	assert.Equal(t, 7*time.Millisecond, got.P95)
	assert.Equal(t, 11*time.Millisecond, got.P99)
	assert.Equal(t, 4*time.Millisecond, got.MeanLatency)
	assert.Equal(t, 100.0, got.QPS)
	assert.InDelta(t, 1.0/3, got.FailureRate, 1e-12)

	allFailed := Merge([]models.MetricRecord{{FailureRate: 1, Failed: 5}})
	assert.Zero(t, allFailed.P50)
	assert.Zero(t, allFailed.MeanLatency)
}

func TestMedian_Even(t *testing.T) {
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, median(nil))
}

func truth(ids ...string) *models.GroundTruthSet {
	g := &models.GroundTruthSet{Key: models.TruthKey{K: 1}}
	for _, id := range ids {
		g.Neighbors = append(g.Neighbors, []models.Neighbor{{ID: id}})
	}
	return g
}

func okResult(backend string) *runner.Result {
	return &runner.Result{
		Backend:       backend,
		Configuration: "default",
		State:         runner.StateDone,
		BuildTime:     1500 * time.Millisecond,
		Trials: []models.Trial{{
			Number: 1,
			Span:   time.Second,
			Observations: []models.Observation{
				{Latency: time.Millisecond, Neighbors: []models.Neighbor{{ID: "a"}}},
				{Latency: 3 * time.Millisecond, Neighbors: []models.Neighbor{{ID: "b"}}},
			},
		}},
	}
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator("synthetic", models.MetricCosine, 1)
	gt := truth("a", "b")

	require.NoError(t, agg.Add(okResult("memory"), gt))
	require.NoError(t, agg.Add(&runner.Result{
		Backend:       "slow",
		Configuration: "ready_after=1h",
		State:         runner.StateFailed,
		Err:           fmt.Errorf("%w: not ready after 5s", models.ErrIngestionTimeout),
	}, gt))
	agg.AddFailure("milvus", "default", fmt.Errorf("%w: unknown backend type", models.ErrConfigRejected))

	tbl := agg.Table()
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, 2, tbl.Failed())

	ok := tbl.Rows[0]
	assert.Equal(t, StatusOK, ok.Status)
	assert.Equal(t, 1.0, ok.Record.Recall)
	assert.Equal(t, 0.0, ok.Record.FailureRate)
	assert.Equal(t, 1500*time.Millisecond, ok.Record.BuildTime)

	failed := tbl.Rows[1]
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "IngestionTimeout", failed.ErrorKind)
	assert.Contains(t, failed.Error, "not ready")
	assert.Equal(t, "ConfigRejected", tbl.Rows[2].ErrorKind)

	rows := tbl.Cells()
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Len(t, r, len(Columns()))
	}
	assert.Equal(t, []string{"memory", "default", "OK", "", "1.0000", "1.0000", "2.000", "1.000", "3.000", "3.000", "2.0", "0.0000", "1.500"}, rows[0])
	assert.Equal(t, "", rows[1][4])
}

func TestAggregator_InconsistentTruth(t *testing.T) {
	agg := NewAggregator("synthetic", models.MetricCosine, 1)
	err := agg.Add(okResult("memory"), truth("a"))
	assert.ErrorIs(t, err, models.ErrGroundTruthInconsistency)
	assert.Empty(t, agg.Table().Rows)
}

func TestAggregator_PartialTrialsOnFailure(t *testing.T) {
	agg := NewAggregator("synthetic", models.MetricCosine, 1)
	res := okResult("memory")
	res.State = runner.StateFailed
	res.Err = errors.Join(models.ErrRunCancelled)

	require.NoError(t, agg.Add(res, truth("a", "b")))
	row := agg.Table().Rows[0]
	assert.Equal(t, StatusFailed, row.Status)
	assert.Equal(t, "RunCancelled", row.ErrorKind)
	assert.Equal(t, 1, row.Record.Trials)
}

func TestColumns_Stable(t *testing.T) {
	cols := Columns()
	cols[0] = "mutated"
	assert.Equal(t, "backend", Columns()[0])
	assert.Equal(t, []string{
		"backend", "configuration", "status", "error",
		"recall@k", "ndcg@k", "mean_ms", "p50_ms", "p95_ms", "p99_ms",
		"qps", "failure_rate", "build_s",
	}, Columns())
}

func sampleTable(t *testing.T) *ComparisonTable {
	agg := NewAggregator("synthetic", models.MetricCosine, 1)
	require.NoError(t, agg.Add(okResult("memory"), truth("a", "b")))
	agg.AddFailure("qdrant", "m=16", fmt.Errorf("%w: connection refused", models.ErrBackendUnavailable))
	return agg.Table()
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable(t)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns(), records[0])
	assert.Equal(t, "memory", records[1][0])
	assert.Equal(t, "FAILED", records[2][2])
	assert.Equal(t, "BackendUnavailable", records[2][3])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleTable(t)))

	var decoded ComparisonTable
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "synthetic", decoded.Dataset)
	require.Len(t, decoded.Rows, 2)
	assert.Contains(t, decoded.Rows[1].Error, "connection refused")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.csv")
	require.NoError(t, WriteFile(path, sampleTable(t), WriteCSV))
	assert.FileExists(t, path)
}

func TestRender(t *testing.T) {
	out := Render(sampleTable(t), DefaultTheme)
	assert.Contains(t, out, "synthetic")
	assert.Contains(t, out, "recall@k")
	assert.Contains(t, out, "memory")
	assert.Contains(t, out, "BackendUnavailable")
	assert.True(t, strings.Count(out, "\n") >= 4)
}
