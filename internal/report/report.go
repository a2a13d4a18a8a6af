// Package report renders a finished generation run for people and tools.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rowforge/rowforge/internal/engine"
)

// RunReport is the final report of one generation run.
type RunReport struct {
	Version     string        `json:"version"`
	GeneratedAt time.Time     `json:"generated_at"`
	RunID       string        `json:"run_id"`
	Source      SourceSummary `json:"source"`
	Sink        string        `json:"sink"`
	Duration    string        `json:"duration"`
	Tables      []TableLine   `json:"tables"`
	Skipped     []string      `json:"skipped,omitempty"`
	TotalRows   int           `json:"total_rows"`
	Complete    bool          `json:"complete"`
	NextSteps   []string      `json:"next_steps,omitempty"`
}

// SourceSummary describes the database the rows were generated for.
type SourceSummary struct {
	Type   string `json:"type"`
	Schema string `json:"schema"`
	Tables int    `json:"tables"`
}

// TableLine is one table's outcome.
type TableLine struct {
	Table     string   `json:"table"`
	Status    string   `json:"status"`
	Rows      int      `json:"rows"`
	FailedAt  string   `json:"failed_at,omitempty"`
	Error     string   `json:"error,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Build creates a RunReport from a run result.
func Build(r *engine.BatchResult) *RunReport {
	rep := &RunReport{
		Version:     "1",
		GeneratedAt: time.Now(),
		RunID:       r.RunID.String(),
		Source: SourceSummary{
			Type:   r.DBType,
			Schema: r.Schema,
			Tables: len(r.Tables),
		},
		Sink:      r.Sink,
		Duration:  r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		Skipped:   r.Skipped,
		TotalRows: r.TotalRows,
		Complete:  r.Failed == 0,
	}

	for _, name := range r.TableNames() {
		o := r.Tables[name]
		line := TableLine{
			Table:     name,
			Status:    string(o.Status),
			Rows:      o.RowsWritten,
			FailedAt:  string(o.FailedAt),
			Error:     o.Error,
			Artifacts: o.Artifacts,
		}
		rep.Tables = append(rep.Tables, line)
		if o.Error != "" {
			rep.NextSteps = append(rep.NextSteps, fmt.Sprintf("%s: %s", name, o.Error))
		}
	}
	if len(r.Skipped) > 0 {
		rep.NextSteps = append(rep.NextSteps,
			fmt.Sprintf("%d tables were skipped by the ignore list", len(r.Skipped)))
	}
	return rep
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// WriteText writes the report as human-readable text.
func WriteText(report *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(report)), 0o644)
}

// Write picks JSON for a .json path and text otherwise.
func Write(report *RunReport, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return WriteJSON(report, path)
	}
	return WriteText(report, path)
}

// FormatText renders the report as human-readable text.
func FormatText(report *RunReport) string {
	var b strings.Builder

	b.WriteString("=== Rowforge Run Report ===\n")
	fmt.Fprintf(&b, "Run:       %s\n", report.RunID)
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	b.WriteString("Source:\n")
	fmt.Fprintf(&b, "  Type:   %s\n", report.Source.Type)
	fmt.Fprintf(&b, "  Schema: %s\n", report.Source.Schema)
	fmt.Fprintf(&b, "  Tables: %d\n\n", report.Source.Tables)

	fmt.Fprintf(&b, "Sink:     %s\n", report.Sink)
	fmt.Fprintf(&b, "Duration: %s\n", report.Duration)
	fmt.Fprintf(&b, "Rows:     %d\n\n", report.TotalRows)

	b.WriteString("Tables:\n")
	width := 0
	for _, t := range report.Tables {
		width = max(width, len(t.Table))
	}
	for _, t := range report.Tables {
		status := "OK"
		if t.Status != string(engine.StatusSuccess) {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %-*s  %d rows", status, width, t.Table, t.Rows)
		if t.FailedAt != "" {
			fmt.Fprintf(&b, " (failed while %s)", t.FailedAt)
		}
		b.WriteString("\n")
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(&b, "  [SKIP] %s\n", s)
	}
	b.WriteString("\n")

	if report.Complete {
		b.WriteString("Complete: YES\n")
	} else {
		b.WriteString("Complete: NO\n")
	}

	if len(report.NextSteps) > 0 {
		b.WriteString("\nNext Steps:\n")
		for i, step := range report.NextSteps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}
	return b.String()
}
