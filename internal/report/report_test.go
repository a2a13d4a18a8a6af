package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rowforge/rowforge/internal/engine"
)

func sampleResult() *engine.BatchResult {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &engine.BatchResult{
		RunID:       uuid.New(),
		DBType:      "postgresql",
		Schema:      "public",
		Sink:        "file",
		StartedAt:   start,
		CompletedAt: start.Add(1500 * time.Millisecond),
		Tables: map[string]*engine.TableOutcome{
			"orders": {
				Table: "orders", Status: engine.StatusSuccess, State: engine.StateSucceeded,
				RowsWritten: 20, Artifacts: []string{"out/orders_1.csv"},
			},
			"audit": {
				Table: "audit", Status: engine.StatusError, State: engine.StateFailed,
				FailedAt: engine.StateIntrospecting, Error: "table audit not found",
			},
		},
		Skipped:   []string{"logs"},
		Succeeded: 1,
		Failed:    1,
		TotalRows: 20,
	}
}

func TestBuild(t *testing.T) {
	r := sampleResult()
	rep := Build(r)

	if rep.RunID != r.RunID.String() {
		t.Errorf("run id = %s", rep.RunID)
	}
	if rep.Complete {
		t.Error("expected incomplete run")
	}
	if rep.Duration != "1.5s" {
		t.Errorf("duration = %s, want 1.5s", rep.Duration)
	}
	if len(rep.Tables) != 2 || rep.Tables[0].Table != "audit" || rep.Tables[1].Table != "orders" {
		t.Fatalf("tables = %+v, want audit then orders", rep.Tables)
	}
	if rep.Tables[0].FailedAt != "introspecting" {
		t.Errorf("failed_at = %q", rep.Tables[0].FailedAt)
	}
	if rep.Tables[1].FailedAt != "" {
		t.Errorf("successful table has failed_at %q", rep.Tables[1].FailedAt)
	}
	if len(rep.NextSteps) != 2 {
		t.Errorf("expected 2 next steps, got %v", rep.NextSteps)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	rep := Build(sampleResult())

	if err := Write(rep, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if loaded.Version != "1" || loaded.TotalRows != 20 || loaded.Source.Tables != 2 {
		t.Errorf("unexpected report after round trip: %+v", loaded)
	}
	if len(loaded.Skipped) != 1 || loaded.Skipped[0] != "logs" {
		t.Errorf("skipped = %v", loaded.Skipped)
	}
}

func TestWriteText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.txt")
	if err := Write(Build(sampleResult()), path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := ReadJSON(path); err == nil {
		t.Error("text report should not parse as JSON")
	}
}

func TestFormatText(t *testing.T) {
	text := FormatText(Build(sampleResult()))

	for _, want := range []string{
		"Run Report",
		"Type:   postgresql",
		"[OK] orders",
		"[FAIL] audit",
		"failed while introspecting",
		"[SKIP] logs",
		"Complete: NO",
		"audit: table audit not found",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}

func TestFormatText_Complete(t *testing.T) {
	r := sampleResult()
	delete(r.Tables, "audit")
	r.Failed = 0
	r.Skipped = nil

	text := FormatText(Build(r))
	if !strings.Contains(text, "Complete: YES") {
		t.Errorf("expected complete run:\n%s", text)
	}
	if strings.Contains(text, "Next Steps") {
		t.Errorf("complete run should have no next steps:\n%s", text)
	}
}
