// Package connector talks to the databases rows are generated for.
package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/schema"
)

// ErrTableNotFound is wrapped when a table has no visible columns.
var ErrTableNotFound = errors.New("table not found")

// Connector introspects a database and writes rows into it.
type Connector interface {
	// TableMetadata describes a table's columns in ordinal order.
	TableMetadata(ctx context.Context, schemaName, table string) (*schema.Table, error)

	// TableNames lists the base tables in a schema.
	TableNames(ctx context.Context, schemaName string) ([]string, error)

	// InsertRows inserts rows in order inside one transaction and returns the
	// number inserted. Any failure rolls back the whole batch.
	InsertRows(ctx context.Context, table *schema.Table, rows []schema.Row) (int, error)

	// PrimaryKeyValues returns every current value of the table's primary key,
	// or nil when the table has none.
	PrimaryKeyValues(ctx context.Context, table *schema.Table) ([]any, error)

	TableExists(ctx context.Context, schemaName, table string) (bool, error)
	CreateTable(ctx context.Context, ddl string) error
	Close() error
}

// Driver opens connectors for the database types it supports.
type Driver interface {
	Name() string
	Supports(dbType string) bool
	Open(ctx context.Context, cfg *config.SourceConfig) (Connector, error)
}

// Drivers is the fixed set of built-in drivers, checked in order.
var Drivers = []Driver{
	PostgresDriver{},
	MySQLDriver{},
	SQLiteDriver{},
}

// Lookup returns the first driver supporting dbType.
func Lookup(dbType string) (Driver, error) {
	return LookupIn(Drivers, dbType)
}

// LookupIn searches drivers for one supporting dbType.
func LookupIn(drivers []Driver, dbType string) (Driver, error) {
	for _, d := range drivers {
		if d.Supports(dbType) {
			return d, nil
		}
	}
	return nil, &ConfigurationError{DBType: dbType}
}

// Open resolves the driver for cfg.Type and opens a connector.
func Open(ctx context.Context, cfg *config.SourceConfig) (Connector, error) {
	d, err := Lookup(cfg.Type)
	if err != nil {
		return nil, err
	}
	return d.Open(ctx, cfg)
}

// ConfigurationError is returned when no driver supports a database type.
type ConfigurationError struct {
	DBType string
}

func (e *ConfigurationError) Error() string {
	return "no connector supports database type: " + e.DBType
}

// Error wraps a failed connector operation with its target.
type Error struct {
	Op     string
	Schema string
	Table  string
	Err    error
}

func (e *Error) Error() string {
	target := e.Table
	if e.Schema != "" && e.Table != "" {
		target = e.Schema + "." + e.Table
	} else if e.Table == "" {
		target = e.Schema
	}
	if target == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func supports(dbType string, names ...string) bool {
	t := strings.ToLower(strings.TrimSpace(dbType))
	for _, n := range names {
		if t == n {
			return true
		}
	}
	return false
}

func quoteIdentPg(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIdentMySQL(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
