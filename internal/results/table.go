package results

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hyperjump/vecbench/internal/models"
)

// Status of a table row.
type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "FAILED"
)

// Row is one (backend, configuration) outcome.
type Row struct {
	Backend       string              `json:"backend"`
	Configuration string              `json:"configuration"`
	Status        Status              `json:"status"`
	ErrorKind     string              `json:"error_kind,omitempty"`
	Error         string              `json:"error,omitempty"`
	Record        models.MetricRecord `json:"record"`
}

// ComparisonTable is the final report for one dataset. Rows keep experiment
// definition order; no row is ranked above another.
type ComparisonTable struct {
	Dataset string        `json:"dataset"`
	Metric  models.Metric `json:"metric"`
	K       int           `json:"k"`
	Rows    []Row         `json:"rows"`
}

var columns = []string{
	"backend", "configuration", "status", "error",
	"recall@k", "ndcg@k", "mean_ms", "p50_ms", "p95_ms", "p99_ms",
	"qps", "failure_rate", "build_s",
}

// Columns returns the stable column set.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

// Cells renders every row as strings aligned with Columns. Metric cells of runs
// that recorded no trials are empty.
func (t *ComparisonTable) Cells() [][]string {
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.cells()
	}
	return out
}

func (r Row) cells() []string {
	rec := r.Record
	cells := []string{r.Backend, r.Configuration, string(r.Status), r.ErrorKind}
	if rec.Trials == 0 {
		cells = append(cells, "", "", "", "", "", "", "", "")
	} else {
		cells = append(cells,
			formatFloat(rec.Recall, 4),
			formatFloat(rec.NDCG, 4),
			millis(rec.MeanLatency),
			millis(rec.P50),
			millis(rec.P95),
			millis(rec.P99),
			formatFloat(rec.QPS, 1),
			formatFloat(rec.FailureRate, 4),
		)
	}
	if rec.BuildTime > 0 {
		cells = append(cells, formatFloat(rec.BuildTime.Seconds(), 3))
	} else {
		cells = append(cells, "")
	}
	return cells
}

func formatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d)/float64(time.Millisecond))
}

// Failed returns the number of FAILED rows.
func (t *ComparisonTable) Failed() int {
	n := 0
	for _, r := range t.Rows {
		if r.Status == StatusFailed {
			n++
		}
	}
	return n
}
