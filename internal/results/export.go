package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hyperjump/vecbench/pkg/utils"
)

// WriteCSV writes the header and one line per row.
func WriteCSV(w io.Writer, t *ComparisonTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Cells()); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// WriteJSON writes the full table, including error messages and raw records.
func WriteJSON(w io.Writer, t *ComparisonTable) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteFile writes t to path with the given writer, creating parent directories.
func WriteFile(path string, t *ComparisonTable, write func(io.Writer, *ComparisonTable) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Theme holds the colors of the terminal table.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Failed  lipgloss.Color
}

// DefaultTheme is the default terminal palette.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Failed:  lipgloss.Color("#ff5f5f"),
}

const maxErrorWidth = 40

// Render draws t as a bordered terminal table with error messages truncated.
func Render(t *ComparisonTable, theme Theme) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	failed := cell.Foreground(theme.Failed)

	rows := t.Cells()
	for i, r := range t.Rows {
		if r.Error != "" {
			rows[i][3] = utils.Truncate(r.ErrorKind+": "+r.Error, maxErrorWidth)
		}
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Dim)).
		Headers(Columns()...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case row >= 0 && row < len(t.Rows) && t.Rows[row].Status == StatusFailed:
				return failed
			default:
				return cell
			}
		})

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).
		Render(fmt.Sprintf("%s · %s · k=%d", t.Dataset, t.Metric, t.K))
	return title + "\n" + tbl.String()
}
