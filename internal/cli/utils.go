// Package cli provides output helpers for the vecbench command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/results"
)

// OutputFormat is the format for report output.
type OutputFormat string

const (
	// OutputText is a rendered terminal table (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCSV is one CSV block per dataset.
	OutputCSV OutputFormat = "csv"
)

// ParseOutputFormat validates a --format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputJSON, OutputCSV:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or csv)", s)
	}
}

// WriteTables writes every comparison table to w in the given format.
func WriteTables(w io.Writer, tables []*results.ComparisonTable, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if tables == nil {
			tables = []*results.ComparisonTable{}
		}
		return enc.Encode(tables)
	case OutputCSV:
		for i, t := range tables {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if len(tables) > 1 {
				fmt.Fprintf(w, "# %s\n", t.Dataset)
			}
			if err := results.WriteCSV(w, t); err != nil {
				return err
			}
		}
		return nil
	default:
		for i, t := range tables {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, results.Render(t, results.DefaultTheme))
		}
		return nil
	}
}

// WriteRunSummary prints one line describing a finished run.
func WriteRunSummary(w io.Writer, run *models.ExperimentRun) {
	style := lipgloss.NewStyle().Bold(true)
	status := string(run.Status)
	if run.Status == models.RunFailed {
		style = style.Foreground(results.DefaultTheme.Failed)
	}
	fmt.Fprintf(w, "Run %s %s: %d rows, %d failed", run.ID, style.Render(status), run.Rows, run.FailedRows)
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, " in %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
}

// WriteRuns lists stored runs, newest first.
func WriteRuns(w io.Writer, runs []*models.ExperimentRun, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if runs == nil {
			runs = []*models.ExperimentRun{}
		}
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-8s  %-20s  %s  rows=%d failed=%d\n",
			r.ID, r.Status, r.Name, r.StartedAt.Format(time.RFC3339), r.Rows, r.FailedRows)
	}
	return nil
}

// TruthSummary describes a prepared ground-truth set.
type TruthSummary struct {
	Dataset string        `json:"dataset"`
	Key     string        `json:"key"`
	Queries int           `json:"queries"`
	K       int           `json:"k"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// WriteTruthSummaries prints the outcome of the truth command.
func WriteTruthSummaries(w io.Writer, sums []TruthSummary, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sums)
	}
	for _, s := range sums {
		fmt.Fprintf(w, "%-20s  k=%-4d queries=%-6d key=%s  (%s)\n",
			s.Dataset, s.K, s.Queries, s.Key, s.Elapsed.Round(time.Millisecond))
	}
	return nil
}
