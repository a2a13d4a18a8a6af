// Package engine generates dummy rows for database tables and dispatches
// them to a sink. It is shared by the CLI and the REST server.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/connector"
	"github.com/rowforge/rowforge/internal/metrics"
	"github.com/rowforge/rowforge/internal/rowgen"
	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/sink"
	"github.com/rowforge/rowforge/internal/typemap"
	"github.com/rowforge/rowforge/internal/valuegen"
)

// ErrHistoryDisabled is returned by history lookups when no store is configured.
var ErrHistoryDisabled = errors.New("run history is disabled")

// RequestError reports an invalid generation request.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// HistoryStore persists run results.
type HistoryStore interface {
	Save(r *BatchResult) error
	Get(id string) (*BatchResult, error)
	List(limit int) ([]*BatchResult, error)
}

// Engine is the core generation engine shared by all interfaces.
type Engine struct {
	Config *config.Config
	Logger *slog.Logger

	drivers []connector.Driver
	history HistoryStore
	metrics *metrics.Metrics

	mu     sync.Mutex
	caches map[string]*rowgen.KeyCache // by source identity; nil when key caching is off
}

// Option configures an Engine.
type Option func(*Engine)

// WithDrivers replaces the built-in driver list.
func WithDrivers(drivers ...connector.Driver) Option {
	return func(e *Engine) {
		e.drivers = drivers
	}
}

// WithHistory records every run in store.
func WithHistory(store HistoryStore) Option {
	return func(e *Engine) {
		e.history = store
	}
}

// WithMetrics records run counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithKeyCaching keeps seeded primary key sets between runs until invalidated.
func WithKeyCaching() Option {
	return func(e *Engine) {
		e.caches = make(map[string]*rowgen.KeyCache)
	}
}

// New creates a new Engine with the given config and logger.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		Config:  cfg,
		Logger:  logger,
		drivers: connector.Drivers,
	}
	if cfg.Generation.CacheKeys {
		e.caches = make(map[string]*rowgen.KeyCache)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateRequest describes one generate-and-dispatch call. Zero fields fall
// back to the engine's config.
type GenerateRequest struct {
	Source       config.SourceConfig
	Table        string // single-table mode when set
	Include      []string
	Ignore       []string
	Rows         int
	Transactions int
	Sink         config.SinkConfig
	Concurrency  int
	Timeout      time.Duration
}

// Generate resolves the connector and sink, runs the request and records the
// result. Per-table failures are reported in the result. The error is non-nil
// only when no table could be attempted.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (*BatchResult, error) {
	req = e.withDefaults(req)
	src := req.Source

	driver, err := connector.LookupIn(e.drivers, src.Type)
	if err != nil {
		return nil, err
	}
	if src.Schema == "" {
		src.Schema = defaultSchema(driver.Name(), src)
	}
	if src.Schema == "" {
		return nil, &RequestError{Field: "schema", Reason: "is required"}
	}

	tm := typemap.ForDatabase(driver.Name())
	if err := tm.ApplyOverrides(e.Config.TypeOverrides); err != nil {
		return nil, &RequestError{Field: "type_overrides", Reason: err.Error()}
	}

	conn, err := driver.Open(ctx, &src)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", driver.Name(), err)
	}
	defer conn.Close()

	target, err := buildTarget(req.Sink, conn)
	if err != nil {
		return nil, err
	}
	s, err := sink.Open(ctx, target, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s sink: %w", sink.Name(target), err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			e.Logger.Warn("closing sink", "sink", s.Name(), "error", err)
		}
	}()

	gen := rowgen.New(valuegen.NewRegistry(tm), e.Config.Generation.MaxPKRetries, e.Logger)
	opts := []OrchestratorOption{
		WithConcurrency(req.Concurrency),
		WithOrchestratorMetrics(e.metrics),
		WithOrchestratorLogger(e.Logger),
	}
	if cache := e.keyCache(driver.Name(), src); cache != nil {
		opts = append(opts, WithKeyCache(cache))
	}
	orch := NewOrchestrator(conn, s, gen, opts...)

	var result *BatchResult
	if req.Table != "" {
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		result, err = orch.RunTable(ctx, src.Schema, req.Table, req.Rows, req.Transactions)
	} else {
		result, err = orch.Run(ctx, Request{
			Schema:       src.Schema,
			Include:      req.Include,
			Ignore:       req.Ignore,
			Rows:         req.Rows,
			Transactions: req.Transactions,
			Timeout:      req.Timeout,
		})
	}
	if err != nil {
		return nil, err
	}

	result.DBType = driver.Name()
	e.metrics.RunFinished()
	if e.history != nil {
		if err := e.history.Save(result); err != nil {
			e.Logger.Warn("saving run history", "run_id", result.RunID, "error", err)
		}
	}
	return result, nil
}

// Introspect returns the column metadata of one table.
func (e *Engine) Introspect(ctx context.Context, src config.SourceConfig, table string) (*schema.Table, error) {
	if table == "" {
		return nil, &RequestError{Field: "table", Reason: "is required"}
	}
	conn, src, err := e.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.TableMetadata(ctx, src.Schema, table)
}

// Tables lists the table names in the source schema.
func (e *Engine) Tables(ctx context.Context, src config.SourceConfig) ([]string, error) {
	conn, src, err := e.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.TableNames(ctx, src.Schema)
}

// Describe introspects every table in the source schema.
func (e *Engine) Describe(ctx context.Context, src config.SourceConfig) (*schema.Schema, error) {
	conn, src, err := e.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	names, err := conn.TableNames(ctx, src.Schema)
	if err != nil {
		return nil, err
	}
	s := &schema.Schema{DatabaseType: src.Type, Database: src.Database, SchemaName: src.Schema}
	for _, name := range names {
		t, err := conn.TableMetadata(ctx, src.Schema, name)
		if err != nil {
			return nil, err
		}
		s.Tables = append(s.Tables, *t)
	}
	return s, nil
}

// Runs returns up to limit recorded runs, newest first.
func (e *Engine) Runs(limit int) ([]*BatchResult, error) {
	if e.history == nil {
		return nil, ErrHistoryDisabled
	}
	return e.history.List(limit)
}

// RunByID returns one recorded run.
func (e *Engine) RunByID(id string) (*BatchResult, error) {
	if e.history == nil {
		return nil, ErrHistoryDisabled
	}
	return e.history.Get(id)
}

// InvalidateKeys drops cached primary key sets for a source. An empty table
// drops every table in the schema. It returns the number of entries removed.
func (e *Engine) InvalidateKeys(src config.SourceConfig, table string) (int, error) {
	src = e.sourceWithDefaults(src)
	driver, err := connector.LookupIn(e.drivers, src.Type)
	if err != nil {
		return 0, err
	}
	if src.Schema == "" {
		src.Schema = defaultSchema(driver.Name(), src)
	}

	e.mu.Lock()
	cache := e.caches[sourceKey(driver.Name(), src)]
	e.mu.Unlock()
	if cache == nil {
		return 0, nil
	}
	if table != "" {
		if cache.Invalidate(src.Schema, table) {
			return 1, nil
		}
		return 0, nil
	}
	return cache.InvalidateSchema(src.Schema), nil
}

func (e *Engine) open(ctx context.Context, src config.SourceConfig) (connector.Connector, config.SourceConfig, error) {
	src = e.sourceWithDefaults(src)
	driver, err := connector.LookupIn(e.drivers, src.Type)
	if err != nil {
		return nil, src, err
	}
	if src.Schema == "" {
		src.Schema = defaultSchema(driver.Name(), src)
	}
	if src.Schema == "" {
		return nil, src, &RequestError{Field: "schema", Reason: "is required"}
	}
	conn, err := driver.Open(ctx, &src)
	if err != nil {
		return nil, src, fmt.Errorf("connecting to %s: %w", driver.Name(), err)
	}
	return conn, src, nil
}

func (e *Engine) keyCache(dbType string, src config.SourceConfig) *rowgen.KeyCache {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.caches == nil {
		return nil
	}
	k := sourceKey(dbType, src)
	c, ok := e.caches[k]
	if !ok {
		c = rowgen.NewKeyCache()
		e.caches[k] = c
	}
	return c
}

func sourceKey(dbType string, src config.SourceConfig) string {
	if src.DSN != "" {
		return dbType + "|" + src.DSN
	}
	return fmt.Sprintf("%s|%s:%d/%s", dbType, src.Host, src.Port, src.Database)
}

// sourceWithDefaults uses the configured source when src names no database
// type. Only the schema may then be overridden.
func (e *Engine) sourceWithDefaults(src config.SourceConfig) config.SourceConfig {
	if src.Type == "" {
		base := e.Config.Source
		if src.Schema != "" {
			base.Schema = src.Schema
		}
		return base
	}
	if src.MaxConnections == 0 {
		src.MaxConnections = e.Config.Source.MaxConnections
	}
	return src
}

func (e *Engine) withDefaults(req GenerateRequest) GenerateRequest {
	gen := e.Config.Generation
	req.Source = e.sourceWithDefaults(req.Source)
	if req.Sink.Type == "" {
		req.Sink = e.Config.Sink
	}
	if req.Table == "" && len(req.Include) == 0 && len(req.Ignore) == 0 {
		req.Include = e.Config.Tables.Include
		req.Ignore = e.Config.Tables.Ignore
	}
	if req.Rows == 0 {
		req.Rows = gen.RowsPerTable
	}
	if req.Transactions == 0 {
		req.Transactions = gen.Transactions
	}
	if req.Concurrency == 0 {
		req.Concurrency = gen.Concurrency
	}
	if req.Timeout == 0 {
		req.Timeout = gen.Timeout
	}
	return req
}

// defaultSchema picks the schema when none is given: the database name for
// MySQL and "main" for SQLite.
func defaultSchema(dbType string, src config.SourceConfig) string {
	switch dbType {
	case "postgresql":
		return "public"
	case "mysql":
		return src.Database
	case "sqlite":
		return "main"
	default:
		return ""
	}
}

// buildTarget maps sink config onto a sink target.
func buildTarget(cfg config.SinkConfig, conn connector.Connector) (sink.Target, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "database":
		return sink.DatabaseTarget{Connector: conn}, nil
	case "topic", "kafka":
		return sink.TopicTarget{
			Topic:           cfg.Topic.Name,
			Brokers:         cfg.Topic.Brokers,
			KeySerializer:   cfg.Topic.KeySerializer,
			ValueSerializer: cfg.Topic.ValueSerializer,
			Properties:      cfg.Topic.Properties,
		}, nil
	case "file", "csv":
		header := true
		if cfg.File.IncludeHeader != nil {
			header = *cfg.File.IncludeHeader
		}
		delim := ','
		if cfg.File.Delimiter != "" {
			r := []rune(cfg.File.Delimiter)
			if len(r) != 1 {
				return nil, &RequestError{Field: "sink.file.delimiter", Reason: "must be a single character"}
			}
			delim = r[0]
		}
		return sink.FileTarget{OutputDir: cfg.File.OutputDir, IncludeHeader: header, Delimiter: delim}, nil
	case "collection", "mongodb":
		return sink.CollectionTarget{
			ConnectionString: cfg.Collection.ConnectionString,
			Database:         cfg.Collection.Database,
			Prefix:           cfg.Collection.Prefix,
		}, nil
	default:
		return nil, &RequestError{Field: "sink.type", Reason: fmt.Sprintf("%q is not one of database, topic, file or collection", cfg.Type)}
	}
}
