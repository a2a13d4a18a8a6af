package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/rowforge/rowforge/internal/connector"
	"github.com/rowforge/rowforge/internal/rowgen"
	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/sink"
	"github.com/rowforge/rowforge/internal/valuegen"
)

func simpleTable(name string) *schema.Table {
	return &schema.Table{
		Name: name,
		Columns: []schema.Column{
			{Name: "id", DataType: "int4", IsPrimaryKey: true},
			{Name: "label", DataType: "varchar", Size: schema.IntPtr(12), Nullable: true},
		},
	}
}

func ordersTable() *schema.Table {
	return &schema.Table{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", DataType: "int4", IsPrimaryKey: true},
			{Name: "amount", DataType: "numeric", Size: schema.IntPtr(10), Scale: schema.IntPtr(2)},
			{Name: "created", DataType: "date"},
		},
	}
}

// scriptedSink wraps another sink and fails or panics on chosen calls.
type scriptedSink struct {
	next    sink.Sink
	mu      sync.Mutex
	calls   map[string]int
	failOn  map[string]int // table -> 1-based call that fails; 0 means every call
	panicOn string
}

func newScriptedSink(next sink.Sink) *scriptedSink {
	return &scriptedSink{next: next, calls: make(map[string]int), failOn: make(map[string]int)}
}

func (s *scriptedSink) Name() string { return s.next.Name() }

func (s *scriptedSink) Write(ctx context.Context, table *schema.Table, rows []schema.Row) (sink.Result, error) {
	s.mu.Lock()
	s.calls[table.Name]++
	n := s.calls[table.Name]
	at, fail := s.failOn[table.Name]
	s.mu.Unlock()

	if table.Name == s.panicOn {
		panic("sink exploded")
	}
	if fail && (at == 0 || at == n) {
		return sink.Result{}, &sink.Error{Kind: sink.KindWrite, Sink: s.Name(), Table: table.QualifiedName(), Err: errors.New("broker unavailable")}
	}
	return s.next.Write(ctx, table, rows)
}

func (s *scriptedSink) Close() error { return nil }

func testOrchestrator(t *testing.T, mock *connector.Mock, s sink.Sink, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	if s == nil {
		s = sink.NewDatabase(mock)
	}
	gen := rowgen.New(valuegen.NewRegistry(nil), 0, slog.Default())
	return NewOrchestrator(mock, s, gen, opts...)
}

func TestRunIsolatesTableFailures(t *testing.T) {
	mock := connector.NewMock(simpleTable("A"), simpleTable("B"), simpleTable("C"))
	s := newScriptedSink(sink.NewDatabase(mock))
	s.failOn["B"] = 0

	res, err := testOrchestrator(t, mock, s).Run(context.Background(), Request{
		Schema:  "public",
		Include: []string{"A", "B", "C"},
		Rows:    5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{"A", "C"} {
		out := res.Tables[name]
		if out.Status != StatusSuccess || out.State != StateSucceeded || out.RowsWritten != 5 {
			t.Errorf("%s: %+v", name, out)
		}
	}
	b := res.Tables["B"]
	if b.Status != StatusError || b.State != StateFailed || b.FailedAt != StateDispatching {
		t.Errorf("B: %+v", b)
	}
	if !strings.Contains(b.Error, "broker unavailable") {
		t.Errorf("B error = %q", b.Error)
	}
	if res.Succeeded != 2 || res.Failed != 1 || res.TotalRows != 10 {
		t.Errorf("counts = %d/%d/%d", res.Succeeded, res.Failed, res.TotalRows)
	}
}

func TestRunIgnoreTakesPrecedence(t *testing.T) {
	mock := connector.NewMock(simpleTable("A"), simpleTable("B"))

	res, err := testOrchestrator(t, mock, nil).Run(context.Background(), Request{
		Schema:  "public",
		Include: []string{"A", "B"},
		Ignore:  []string{"B"},
		Rows:    3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Tables) != 1 || res.Tables["A"] == nil {
		t.Fatalf("tables = %v", res.TableNames())
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "B" {
		t.Errorf("skipped = %v", res.Skipped)
	}
	if res.Failed != 0 {
		t.Errorf("ignored table counted as failure")
	}
	if len(mock.Inserted("B")) != 0 {
		t.Error("ignored table received rows")
	}
}

func TestRunListsTablesWithoutInclude(t *testing.T) {
	mock := connector.NewMock(simpleTable("A"), simpleTable("B"), simpleTable("audit_log"))

	res, err := testOrchestrator(t, mock, nil, WithConcurrency(1)).Run(context.Background(), Request{
		Schema: "public",
		Ignore: []string{"audit_*"},
		Rows:   2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.TableNames(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("tables = %v", got)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "audit_log" {
		t.Errorf("skipped = %v", res.Skipped)
	}
}

func TestRunListingFailure(t *testing.T) {
	mock := connector.NewMock()
	mock.TableNamesErr = errors.New("permission denied")

	_, err := testOrchestrator(t, mock, nil).Run(context.Background(), Request{Schema: "public", Rows: 1})
	var cerr *connector.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected connector error, got %v", err)
	}
}

func TestRunMissingTableFailsOnlyThatTable(t *testing.T) {
	mock := connector.NewMock(simpleTable("A"))

	res, err := testOrchestrator(t, mock, nil).Run(context.Background(), Request{
		Schema:  "public",
		Include: []string{"A", "nope"},
		Rows:    1,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := res.Tables["nope"]
	if out.Status != StatusError || out.FailedAt != StateIntrospecting {
		t.Errorf("nope: %+v", out)
	}
	if res.Tables["A"].Status != StatusSuccess {
		t.Errorf("A: %+v", res.Tables["A"])
	}
}

func TestRunRecoversPanics(t *testing.T) {
	mock := connector.NewMock(simpleTable("A"), simpleTable("B"))
	s := newScriptedSink(sink.NewDatabase(mock))
	s.panicOn = "A"

	res, err := testOrchestrator(t, mock, s).Run(context.Background(), Request{
		Schema:  "public",
		Include: []string{"A", "B"},
		Rows:    2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a := res.Tables["A"]; a.Status != StatusError || !strings.Contains(a.Error, "sink exploded") {
		t.Errorf("A: %+v", a)
	}
	if res.Tables["B"].Status != StatusSuccess {
		t.Errorf("B: %+v", res.Tables["B"])
	}
}

func TestRunCancelledContextFailsUnstartedTables(t *testing.T) {
	mock := connector.NewMock(simpleTable("A"), simpleTable("B"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := testOrchestrator(t, mock, nil).Run(ctx, Request{
		Schema:  "public",
		Include: []string{"A", "B"},
		Rows:    2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 2 {
		t.Fatalf("failed = %d, want 2", res.Failed)
	}
	for _, out := range res.Tables {
		if !strings.Contains(out.Error, "context canceled") {
			t.Errorf("%s error = %q", out.Table, out.Error)
		}
	}
}

func TestRunValidatesRequest(t *testing.T) {
	o := testOrchestrator(t, connector.NewMock(), nil)

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"no schema", Request{Rows: 1}, "schema"},
		{"zero rows", Request{Schema: "public"}, "rows"},
		{"negative transactions", Request{Schema: "public", Rows: 1, Transactions: -1}, "transactions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Run(context.Background(), tt.req)
			var rerr *RequestError
			if !errors.As(err, &rerr) || rerr.Field != tt.field {
				t.Errorf("expected request error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestRunTableAbortsOnFirstFailure(t *testing.T) {
	mock := connector.NewMock(simpleTable("A"))
	s := newScriptedSink(sink.NewDatabase(mock))
	s.failOn["A"] = 3

	res, err := testOrchestrator(t, mock, s).RunTable(context.Background(), "public", "A", 10, 5)
	if err != nil {
		t.Fatalf("RunTable: %v", err)
	}
	out := res.Tables["A"]
	if out.Status != StatusError {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.RowsWritten != 20 || out.Transactions != 2 {
		t.Errorf("rows = %d, transactions = %d, want 20 and 2", out.RowsWritten, out.Transactions)
	}
	if s.calls["A"] != 3 {
		t.Errorf("sink called %d times, want 3", s.calls["A"])
	}
	if !strings.Contains(out.Error, "transaction 3 of 5") {
		t.Errorf("error = %q", out.Error)
	}
}

func TestRunTableKeepsKeysUniqueAcrossTransactions(t *testing.T) {
	tbl := &schema.Table{
		Name: "codes",
		Columns: []schema.Column{
			{Name: "id", DataType: "smallint", IsPrimaryKey: true},
		},
	}
	mock := connector.NewMock(tbl)
	mock.Existing["codes"] = []any{int16(1), int16(2), int16(3)}

	res, err := testOrchestrator(t, mock, nil).RunTable(context.Background(), "public", "codes", 200, 5)
	if err != nil {
		t.Fatalf("RunTable: %v", err)
	}
	if out := res.Tables["codes"]; out.Status != StatusSuccess || out.RowsWritten != 1000 {
		t.Fatalf("codes: %+v", out)
	}

	seen := map[int16]bool{1: true, 2: true, 3: true}
	for _, r := range mock.Inserted("codes") {
		id := r["id"].(int16)
		if seen[id] {
			t.Fatalf("duplicate primary key %d", id)
		}
		seen[id] = true
	}
}

func TestRunTableRequiresTable(t *testing.T) {
	_, err := testOrchestrator(t, connector.NewMock(), nil).RunTable(context.Background(), "public", "", 1, 1)
	var rerr *RequestError
	if !errors.As(err, &rerr) {
		t.Errorf("expected request error, got %v", err)
	}
}

func TestOrdersScenario(t *testing.T) {
	mock := connector.NewMock(ordersTable())

	res, err := testOrchestrator(t, mock, nil).RunTable(context.Background(), "public", "orders", 5, 1)
	if err != nil {
		t.Fatalf("RunTable: %v", err)
	}
	out := res.Tables["orders"]
	if out.Status != StatusSuccess || out.RowsWritten != 5 {
		t.Fatalf("orders: %+v", out)
	}
	checkOrders(t, mock.Inserted("orders"))
}

func checkOrders(t *testing.T, rows []schema.Row) {
	t.Helper()
	if len(rows) != 5 {
		t.Fatalf("inserted %d rows, want 5", len(rows))
	}
	limit := valuegen.NewDecimal(big.NewInt(100000000), 0)
	zero := valuegen.NewDecimal(big.NewInt(0), 0)
	ids := make(map[int32]bool)
	for _, r := range rows {
		ids[r["id"].(int32)] = true
		amount := r["amount"].(valuegen.Decimal)
		if amount.Scale() != 2 {
			t.Errorf("amount %s has scale %d", amount, amount.Scale())
		}
		if amount.Cmp(zero) < 0 || amount.Cmp(limit) >= 0 {
			t.Errorf("amount %s out of range", amount)
		}
		if _, ok := r["created"].(valuegen.Date); !ok {
			t.Errorf("created = %T, want Date", r["created"])
		}
	}
	if len(ids) != 5 {
		t.Errorf("ids not distinct: %v", ids)
	}
}

func TestKeyCacheSkipsReseeding(t *testing.T) {
	mock := connector.NewMock(simpleTable("A"))
	cache := rowgen.NewKeyCache()
	o := testOrchestrator(t, mock, nil, WithKeyCache(cache))

	for i := 0; i < 2; i++ {
		if _, err := o.RunTable(context.Background(), "public", "A", 3, 1); err != nil {
			t.Fatalf("RunTable: %v", err)
		}
	}
	if cache.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", cache.Len())
	}

	mock.PKErr["A"] = errors.New("should not be called")
	res, _ := o.RunTable(context.Background(), "public", "A", 3, 1)
	if res.Tables["A"].Status != StatusSuccess {
		t.Errorf("expected cached keys to be used, got %+v", res.Tables["A"])
	}

	cache.Invalidate("public", "A")
	res, _ = o.RunTable(context.Background(), "public", "A", 3, 1)
	if res.Tables["A"].Status != StatusError {
		t.Error("expected reseed after invalidation")
	}
}

func TestBatchResultSummary(t *testing.T) {
	r := newBatchResult("public", "file")
	r.Tables["a"] = &TableOutcome{Status: StatusSuccess, RowsWritten: 4}
	r.Tables["b"] = &TableOutcome{Status: StatusError}
	r.Skipped = []string{"c"}
	r.finish()

	got := r.Summary()
	if !strings.HasPrefix(got, "1 tables succeeded, 1 failed, 4 rows written, 1 skipped") {
		t.Errorf("Summary = %q", got)
	}
}
