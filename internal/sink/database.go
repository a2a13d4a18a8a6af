package sink

import (
	"context"

	"github.com/rowforge/rowforge/internal/connector"
	"github.com/rowforge/rowforge/internal/schema"
)

// Database inserts rows into the table they were generated for.
type Database struct {
	conn connector.Connector
}

// NewDatabase creates a database sink over conn. The sink does not own conn.
func NewDatabase(conn connector.Connector) *Database {
	return &Database{conn: conn}
}

func (d *Database) Name() string { return "database" }

func (d *Database) Write(ctx context.Context, table *schema.Table, rows []schema.Row) (Result, error) {
	if len(rows) == 0 {
		return Result{}, nil
	}
	n, err := d.conn.InsertRows(ctx, table, rows)
	if err != nil {
		return Result{}, &Error{Kind: KindWrite, Sink: d.Name(), Table: table.QualifiedName(), Err: err}
	}
	return Result{Rows: n}, nil
}

func (d *Database) Close() error { return nil }
