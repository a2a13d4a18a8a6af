package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rowforge/rowforge/internal/engine"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(started time.Time, rows int) *engine.BatchResult {
	return &engine.BatchResult{
		RunID:       uuid.New(),
		DBType:      "postgresql",
		Schema:      "public",
		Sink:        "database",
		StartedAt:   started,
		CompletedAt: started.Add(time.Second),
		Tables: map[string]*engine.TableOutcome{
			"orders": {Table: "orders", Status: engine.StatusSuccess, State: engine.StateSucceeded, RowsWritten: rows},
		},
		Succeeded: 1,
		TotalRows: rows,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := testStore(t)
	run := testRun(time.Now().UTC(), 5)

	if err := s.Save(run); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(run.RunID.String())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RunID != run.RunID || got.TotalRows != 5 || got.Tables["orders"].Status != engine.StatusSuccess {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := s.Get(uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := s.Save(testRun(base.Add(time.Duration(i)*time.Hour), i)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	all, err := s.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].TotalRows != 2 || all[2].TotalRows != 0 {
		t.Errorf("unexpected order: %d runs", len(all))
	}

	two, _ := s.List(2)
	if len(two) != 2 {
		t.Errorf("List(2) returned %d runs", len(two))
	}
}

func TestSaveReplacesAndDelete(t *testing.T) {
	s := testStore(t)
	run := testRun(time.Now().UTC(), 1)
	s.Save(run)
	run.TotalRows = 9
	run.StartedAt = run.StartedAt.Add(time.Minute)
	s.Save(run)

	all, _ := s.List(0)
	if len(all) != 1 || all[0].TotalRows != 9 {
		t.Fatalf("expected one replaced run, got %d", len(all))
	}

	if err := s.Delete(run.RunID.String()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(run.RunID.String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete("unknown"); err != nil {
		t.Errorf("Delete unknown: %v", err)
	}
}

func TestStoreImplementsHistoryStore(t *testing.T) {
	var _ engine.HistoryStore = testStore(t)
}
