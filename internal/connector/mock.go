package connector

import (
	"context"
	"sort"
	"sync"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/schema"
)

// Mock is an in-memory Connector for tests. It is safe for concurrent use.
type Mock struct {
	Tables   map[string]*schema.Table // key: table name
	Existing map[string][]any         // primary key values already present, by table

	TableNamesErr error
	MetadataErr   map[string]error
	InsertErr     map[string]error
	PKErr         map[string]error
	CreateErr     error
	CloseErr      error

	// Track calls
	mu       sync.Mutex
	inserted map[string][]schema.Row
	created  []string
	closed   bool
}

// NewMock returns a Mock serving the given tables.
func NewMock(tables ...*schema.Table) *Mock {
	m := &Mock{
		Tables:      make(map[string]*schema.Table, len(tables)),
		Existing:    make(map[string][]any),
		MetadataErr: make(map[string]error),
		InsertErr:   make(map[string]error),
		PKErr:       make(map[string]error),
	}
	for _, t := range tables {
		m.Tables[t.Name] = t
	}
	return m
}

func (m *Mock) TableNames(_ context.Context, schemaName string) ([]string, error) {
	if m.TableNamesErr != nil {
		return nil, &Error{Op: "listing tables", Schema: schemaName, Err: m.TableNamesErr}
	}
	names := make([]string, 0, len(m.Tables))
	for n := range m.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Mock) TableMetadata(_ context.Context, schemaName, table string) (*schema.Table, error) {
	if err := m.MetadataErr[table]; err != nil {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: err}
	}
	t, ok := m.Tables[table]
	if !ok {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: ErrTableNotFound}
	}
	cp := *t
	cp.Schema = schemaName
	cp.Columns = append([]schema.Column(nil), t.Columns...)
	return &cp, nil
}

func (m *Mock) InsertRows(_ context.Context, table *schema.Table, rows []schema.Row) (int, error) {
	if err := m.InsertErr[table.Name]; err != nil {
		return 0, &Error{Op: "inserting into", Schema: table.Schema, Table: table.Name, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inserted == nil {
		m.inserted = make(map[string][]schema.Row)
	}
	m.inserted[table.Name] = append(m.inserted[table.Name], rows...)
	return len(rows), nil
}

func (m *Mock) PrimaryKeyValues(_ context.Context, table *schema.Table) ([]any, error) {
	if err := m.PKErr[table.Name]; err != nil {
		return nil, &Error{Op: "reading primary keys of", Schema: table.Schema, Table: table.Name, Err: err}
	}
	pk, err := table.PrimaryKey()
	if err != nil || pk == nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	values := append([]any(nil), m.Existing[table.Name]...)
	for _, r := range m.inserted[table.Name] {
		values = append(values, r[pk.Name])
	}
	return values, nil
}

func (m *Mock) TableExists(_ context.Context, _, table string) (bool, error) {
	_, ok := m.Tables[table]
	return ok, nil
}

func (m *Mock) CreateTable(_ context.Context, ddl string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, ddl)
	return m.CreateErr
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseErr
}

// Inserted returns the rows inserted into a table so far.
func (m *Mock) Inserted(table string) []schema.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.Row(nil), m.inserted[table]...)
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Created returns the DDL statements passed to CreateTable.
func (m *Mock) Created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.created...)
}

// MockDriver serves a fixed Connector for the listed database types.
type MockDriver struct {
	Types   []string
	Conn    Connector
	OpenErr error
}

func (d *MockDriver) Name() string { return "mock" }

func (d *MockDriver) Supports(dbType string) bool {
	return supports(dbType, d.Types...)
}

func (d *MockDriver) Open(_ context.Context, _ *config.SourceConfig) (Connector, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	return d.Conn, nil
}
