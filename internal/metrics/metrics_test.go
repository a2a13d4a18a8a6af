package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RowsGenerated("public.orders", 5)
	m.RowsWritten("database", 5)
	m.TableFinished("succeeded")
	m.RunFinished()
	m.ObserveWrite("database", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, want := range []string{
		`rowforge_rows_generated_total{table="public.orders"} 5`,
		`rowforge_rows_written_total{sink="database"} 5`,
		`rowforge_tables_total{status="succeeded"} 1`,
		`rowforge_runs_total 1`,
		`rowforge_sink_write_seconds_count{sink="database"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RowsGenerated("t", 1)
	m.RowsWritten("file", 1)
	m.TableFinished("failed")
	m.RunFinished()
	m.ObserveWrite("file", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
