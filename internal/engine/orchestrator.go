package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rowforge/rowforge/internal/connector"
	"github.com/rowforge/rowforge/internal/metrics"
	"github.com/rowforge/rowforge/internal/rowgen"
	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/selection"
	"github.com/rowforge/rowforge/internal/sink"
)

const (
	DefaultConcurrency = 10
	MaxConcurrency     = 64
)

// State is a table task's position in the pipeline.
type State string

const (
	StatePending       State = "pending"
	StateIntrospecting State = "introspecting"
	StateGenerating    State = "generating"
	StateDispatching   State = "dispatching"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
)

// Status is the reported result of a table task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// TableOutcome is the result of one table task.
type TableOutcome struct {
	Table        string        `json:"table"`
	Status       Status        `json:"status"`
	State        State         `json:"state"`
	FailedAt     State         `json:"failed_at,omitempty"` // state the task was in when it failed
	RowsWritten  int           `json:"rows_written"`
	Transactions int           `json:"transactions"`
	Error        string        `json:"error,omitempty"`
	Artifacts    []string      `json:"artifacts,omitempty"`
	Duration     time.Duration `json:"duration"`
}

func (o *TableOutcome) fail(err error) {
	o.FailedAt = o.State
	o.State = StateFailed
	o.Status = StatusError
	o.Error = err.Error()
}

// BatchResult aggregates the outcomes of one run.
type BatchResult struct {
	RunID       uuid.UUID                `json:"run_id"`
	DBType      string                   `json:"db_type"`
	Schema      string                   `json:"schema"`
	Sink        string                   `json:"sink"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt time.Time                `json:"completed_at"`
	Tables      map[string]*TableOutcome `json:"tables"`
	Skipped     []string                 `json:"skipped,omitempty"`
	Succeeded   int                      `json:"succeeded"`
	Failed      int                      `json:"failed"`
	TotalRows   int                      `json:"total_rows"`
}

func newBatchResult(schemaName, sinkName string) *BatchResult {
	return &BatchResult{
		RunID:     uuid.New(),
		Schema:    schemaName,
		Sink:      sinkName,
		StartedAt: time.Now().UTC(),
		Tables:    make(map[string]*TableOutcome),
	}
}

func (r *BatchResult) finish() {
	r.Succeeded, r.Failed, r.TotalRows = 0, 0, 0
	for _, o := range r.Tables {
		if o.Status == StatusSuccess {
			r.Succeeded++
		} else {
			r.Failed++
		}
		r.TotalRows += o.RowsWritten
	}
	r.CompletedAt = time.Now().UTC()
}

// TableNames returns the attempted tables sorted by name.
func (r *BatchResult) TableNames() []string {
	names := make([]string, 0, len(r.Tables))
	for n := range r.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Summary returns a one-line human-readable summary.
func (r *BatchResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d tables succeeded, %d failed, %d rows written", r.Succeeded, r.Failed, r.TotalRows)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(r.Skipped))
	}
	if !r.CompletedAt.IsZero() {
		fmt.Fprintf(&b, " in %s", r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	return b.String()
}

// Request describes a multi-table run.
type Request struct {
	Schema       string
	Include      []string // literal names or patterns; empty means every table in Schema
	Ignore       []string
	Rows         int // rows per table per transaction
	Transactions int // default 1
	Timeout      time.Duration
}

// Orchestrator runs the introspect, generate and dispatch pipeline for one
// connector and one sink.
type Orchestrator struct {
	conn        connector.Connector
	sink        sink.Sink
	gen         *rowgen.Generator
	cache       *rowgen.KeyCache
	metrics     *metrics.Metrics
	logger      *slog.Logger
	concurrency int
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConcurrency bounds the number of tables processed at once.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.concurrency = n
	}
}

// WithKeyCache reuses primary key sets across runs.
func WithKeyCache(c *rowgen.KeyCache) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

// WithOrchestratorMetrics records per-table counters.
func WithOrchestratorMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// NewOrchestrator creates an Orchestrator. The caller owns conn and s.
func NewOrchestrator(conn connector.Connector, s sink.Sink, gen *rowgen.Generator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		conn:        conn,
		sink:        s,
		gen:         gen,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.concurrency = clampConcurrency(o.concurrency)
	return o
}

func clampConcurrency(n int) int {
	switch {
	case n <= 0:
		return DefaultConcurrency
	case n > MaxConcurrency:
		return MaxConcurrency
	default:
		return n
	}
}

// Run processes every selected table concurrently. A table's failure is
// recorded in its outcome and never stops the others. Run only returns an
// error for request-level problems.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*BatchResult, error) {
	if req.Transactions == 0 {
		req.Transactions = 1
	}
	if err := validateCounts(req.Schema, req.Rows, req.Transactions); err != nil {
		return nil, err
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	result := newBatchResult(req.Schema, o.sink.Name())

	var available []string
	if selection.NeedsListing(req.Include) {
		names, err := o.conn.TableNames(ctx, req.Schema)
		if err != nil {
			return nil, fmt.Errorf("selecting tables: %w", err)
		}
		available = names
	}
	selected, skipped := selection.Resolve(req.Include, available, req.Ignore)
	result.Skipped = skipped
	for _, name := range skipped {
		o.logger.Debug("skipping ignored table", "table", name)
	}
	for _, name := range selected {
		result.Tables[name] = &TableOutcome{Table: name, State: StatePending}
	}

	o.logger.Info("starting run",
		"run_id", result.RunID,
		"schema", req.Schema,
		"tables", len(selected),
		"skipped", len(skipped),
		"sink", result.Sink,
	)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for _, name := range selected {
		g.Go(func() error {
			var out *TableOutcome
			if err := ctx.Err(); err != nil {
				out = &TableOutcome{Table: name, State: StatePending}
				out.fail(fmt.Errorf("not started: %w", err))
				o.metrics.TableFinished(string(out.State))
			} else {
				out = o.process(ctx, req.Schema, name, req.Rows, req.Transactions)
			}
			mu.Lock()
			result.Tables[name] = out
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	result.finish()
	o.logger.Info("run complete", "run_id", result.RunID, "summary", result.Summary())
	return result, nil
}

// RunTable writes txns batches of rowsPerTxn rows to one table in sequence.
// The batches share one primary key set, and the first failing batch aborts
// the rest.
func (o *Orchestrator) RunTable(ctx context.Context, schemaName, table string, rowsPerTxn, txns int) (*BatchResult, error) {
	if table == "" {
		return nil, &RequestError{Field: "table", Reason: "is required"}
	}
	if err := validateCounts(schemaName, rowsPerTxn, txns); err != nil {
		return nil, err
	}

	result := newBatchResult(schemaName, o.sink.Name())
	result.Tables[table] = o.process(ctx, schemaName, table, rowsPerTxn, txns)
	result.finish()
	o.logger.Info("run complete", "run_id", result.RunID, "table", table, "summary", result.Summary())
	return result, nil
}

func validateCounts(schemaName string, rows, txns int) error {
	if schemaName == "" {
		return &RequestError{Field: "schema", Reason: "is required"}
	}
	if rows < 1 {
		return &RequestError{Field: "rows", Reason: fmt.Sprintf("must be at least 1, got %d", rows)}
	}
	if txns < 1 {
		return &RequestError{Field: "transactions", Reason: fmt.Sprintf("must be at least 1, got %d", txns)}
	}
	return nil
}

// process runs the pipeline for one table. It never panics.
func (o *Orchestrator) process(ctx context.Context, schemaName, name string, rowsPerTxn, txns int) (out *TableOutcome) {
	out = &TableOutcome{Table: name, State: StatePending}
	start := time.Now()
	logger := o.logger.With("schema", schemaName, "table", name)

	defer func() {
		if r := recover(); r != nil {
			out.fail(fmt.Errorf("panic: %v", r))
		}
		out.Duration = time.Since(start)
		o.metrics.TableFinished(string(out.State))
		if out.Status == StatusError {
			logger.Error("table failed", "stage", out.FailedAt, "rows_written", out.RowsWritten, "error", out.Error)
		} else {
			logger.Info("table complete", "rows_written", out.RowsWritten, "transactions", out.Transactions, "duration", out.Duration)
		}
	}()

	out.State = StateIntrospecting
	table, err := o.conn.TableMetadata(ctx, schemaName, name)
	if err != nil {
		out.fail(err)
		return out
	}
	set, err := o.seed(ctx, table)
	if err != nil {
		out.fail(err)
		return out
	}

	for i := 0; i < txns; i++ {
		out.State = StateGenerating
		rows, err := o.gen.Generate(ctx, table, rowsPerTxn, set)
		if err != nil {
			out.fail(err)
			return out
		}
		o.metrics.RowsGenerated(table.QualifiedName(), len(rows))

		out.State = StateDispatching
		begin := time.Now()
		res, err := o.sink.Write(ctx, table, rows)
		o.metrics.ObserveWrite(o.sink.Name(), time.Since(begin))
		if err != nil {
			if txns > 1 {
				err = fmt.Errorf("transaction %d of %d: %w", i+1, txns, err)
			}
			out.fail(err)
			return out
		}
		o.metrics.RowsWritten(o.sink.Name(), res.Rows)
		out.RowsWritten += res.Rows
		out.Transactions++
		if res.Artifact != "" {
			out.Artifacts = append(out.Artifacts, res.Artifact)
		}
		logger.Debug("transaction written", "transaction", i+1, "rows", res.Rows)
	}

	out.State = StateSucceeded
	out.Status = StatusSuccess
	return out
}

// seed returns the uniqueness set for table, loaded from the primary key
// values already present. Tables without a usable key get a nil set, and
// the generator reports composite keys itself.
func (o *Orchestrator) seed(ctx context.Context, table *schema.Table) (*rowgen.UniquenessSet, error) {
	pk, err := table.PrimaryKey()
	if err != nil || pk == nil {
		return nil, nil
	}

	load := func(ctx context.Context, _, _ string) (*rowgen.UniquenessSet, error) {
		values, err := o.conn.PrimaryKeyValues(ctx, table)
		if err != nil {
			return nil, err
		}
		return rowgen.NewUniquenessSet(values...), nil
	}

	if o.cache != nil {
		return o.cache.Get(ctx, table.Schema, table.Name, load)
	}
	return load(ctx, table.Schema, table.Name)
}
