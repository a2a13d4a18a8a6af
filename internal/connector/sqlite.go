package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
)

// SQLiteDriver opens SQLite connectors using the pure-Go modernc driver.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string { return "sqlite" }

func (SQLiteDriver) Supports(dbType string) bool {
	return supports(dbType, "sqlite", "sqlite3")
}

func (SQLiteDriver) Open(ctx context.Context, cfg *config.SourceConfig) (Connector, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Database
	}
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite enable foreign keys: %w", err)
	}

	return &SQLite{sqlDB{
		db:      db,
		types:   typemap.ForDatabase("sqlite"),
		quote:   quoteIdentPg,
		qualify: qualifySQLite,
	}}, nil
}

func qualifySQLite(_, table string) string {
	return quoteIdentPg(table)
}

// SQLite implements Connector for SQLite. Schema names are ignored; every
// table lives in the main database.
type SQLite struct {
	sqlDB
}

type sqliteColumn struct {
	CID     int            `db:"cid"`
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull int            `db:"notnull"`
	Default sql.NullString `db:"dflt_value"`
	PKOrder int            `db:"pk"`
}

func (s *SQLite) TableNames(ctx context.Context, _ string) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, &Error{Op: "listing tables", Err: err}
	}
	return names, nil
}

func (s *SQLite) TableMetadata(ctx context.Context, schemaName, table string) (*schema.Table, error) {
	var cols []sqliteColumn
	if err := s.db.SelectContext(ctx, &cols, "PRAGMA table_info("+quoteIdentPg(table)+")"); err != nil {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: err}
	}
	if len(cols) == 0 {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: ErrTableNotFound}
	}

	t := &schema.Table{Schema: schemaName, Name: table}
	for _, c := range cols {
		name, size, scale := parseTypeParams(c.Type)
		// DECIMAL(p) means DECIMAL(p,0)
		if size != nil && scale == nil && s.types.Resolve(name) == typemap.KindNumeric {
			scale = schema.IntPtr(0)
		}
		t.Columns = append(t.Columns, schema.Column{
			Name:         c.Name,
			DataType:     name,
			Nullable:     c.NotNull == 0 && c.PKOrder == 0,
			IsPrimaryKey: c.PKOrder > 0,
			Size:         size,
			Scale:        scale,
			Unsigned:     typemap.IsUnsigned(c.Type),
		})
	}
	return t, nil
}

func (s *SQLite) TableExists(ctx context.Context, _, table string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, &Error{Op: "checking", Table: table, Err: err}
	}
	return n > 0, nil
}
