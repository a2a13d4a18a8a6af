package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
)

// sqlDB holds the database/sql operations shared by the MySQL and SQLite connectors.
type sqlDB struct {
	db      *sqlx.DB
	types   *typemap.TypeMap
	quote   func(string) string
	qualify func(schemaName, table string) string
}

func (s *sqlDB) InsertRows(ctx context.Context, table *schema.Table, rows []schema.Row) (int, error) {
	cols := table.ColumnNames()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.quote(c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.qualify(table.Schema, table.Name),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &Error{Op: "beginning insert", Schema: table.Schema, Table: table.Name, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return 0, &Error{Op: "preparing insert", Schema: table.Schema, Table: table.Name, Err: err}
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Values(cols)...); err != nil {
			return 0, &Error{Op: fmt.Sprintf("inserting row %d into", i), Schema: table.Schema, Table: table.Name, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, &Error{Op: "committing insert", Schema: table.Schema, Table: table.Name, Err: err}
	}
	return len(rows), nil
}

func (s *sqlDB) PrimaryKeyValues(ctx context.Context, table *schema.Table) ([]any, error) {
	pk, err := table.PrimaryKey()
	if err != nil || pk == nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", s.quote(pk.Name), s.qualify(table.Schema, table.Name))
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, &Error{Op: "reading primary keys of", Schema: table.Schema, Table: table.Name, Err: err}
	}
	defer rows.Close()

	kind := s.types.Resolve(pk.DataType)
	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, &Error{Op: "reading primary keys of", Schema: table.Schema, Table: table.Name, Err: err}
		}
		values = append(values, normalizeKey(kind, pk, v))
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "reading primary keys of", Schema: table.Schema, Table: table.Name, Err: err}
	}
	return values, nil
}

func (s *sqlDB) CreateTable(ctx context.Context, ddl string) error {
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return &Error{Op: "creating table", Err: err}
	}
	return nil
}

func (s *sqlDB) Close() error {
	return s.db.Close()
}
