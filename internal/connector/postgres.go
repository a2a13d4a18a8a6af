package connector

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
	"github.com/rowforge/rowforge/internal/valuegen"
)

// PostgresDriver opens PostgreSQL connectors backed by a pgx pool.
type PostgresDriver struct{}

func (PostgresDriver) Name() string { return "postgresql" }

func (PostgresDriver) Supports(dbType string) bool {
	return supports(dbType, "postgresql", "postgres", "pg")
}

func (PostgresDriver) Open(ctx context.Context, cfg *config.SourceConfig) (Connector, error) {
	poolCfg, err := pgxpool.ParseConfig(postgresConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	return &Postgres{pool: pool, types: typemap.ForDatabase("postgresql")}, nil
}

func postgresConnString(cfg *config.SourceConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		cfg.Host, port, cfg.Database, cfg.Username, cfg.Password)
	if cfg.SSL {
		connStr += " sslmode=require"
	} else {
		connStr += " sslmode=disable"
	}
	return connStr
}

// Postgres implements Connector for PostgreSQL.
type Postgres struct {
	pool  *pgxpool.Pool
	types *typemap.TypeMap
}

func (p *Postgres) TableNames(ctx context.Context, schemaName string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := p.pool.Query(ctx, query, schemaName)
	if err != nil {
		return nil, &Error{Op: "listing tables", Schema: schemaName, Err: err}
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &Error{Op: "listing tables", Schema: schemaName, Err: err}
	}
	return names, nil
}

func (p *Postgres) TableMetadata(ctx context.Context, schemaName, table string) (*schema.Table, error) {
	query := `
		SELECT
			c.column_name,
			c.udt_name,
			c.is_nullable,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale,
			EXISTS (
				SELECT 1
				FROM pg_index i
				JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
				WHERE i.indisprimary
				  AND i.indrelid = format('%I.%I', c.table_schema, c.table_name)::regclass
				  AND a.attname = c.column_name
			) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		  AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := p.pool.Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: err}
	}
	defer rows.Close()

	t := &schema.Table{Schema: schemaName, Name: table}
	for rows.Next() {
		var (
			name, udt, nullable    string
			maxLen, precision, scl *int
			isPK                   bool
		)
		if err := rows.Scan(&name, &udt, &nullable, &maxLen, &precision, &scl, &isPK); err != nil {
			return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: err}
		}
		col := schema.Column{
			Name:         name,
			DataType:     udt,
			Nullable:     nullable == "YES",
			IsPrimaryKey: isPK,
			Size:         maxLen,
		}
		if p.types.Resolve(udt) == typemap.KindNumeric {
			col.Size = precision
			col.Scale = scl
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: err}
	}
	if len(t.Columns) == 0 {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: ErrTableNotFound}
	}
	return t, nil
}

func (p *Postgres) InsertRows(ctx context.Context, table *schema.Table, rows []schema.Row) (int, error) {
	cols := table.ColumnNames()
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentPg(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		quoteIdentPg(table.Schema), quoteIdentPg(table.Name),
		strings.Join(quoted, ", "), strings.Join(params, ", "))

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, &Error{Op: "beginning insert", Schema: table.Schema, Table: table.Name, Err: err}
	}
	defer tx.Rollback(ctx)

	for i, row := range rows {
		args := make([]any, len(table.Columns))
		for j := range table.Columns {
			args[j] = p.encode(&table.Columns[j], row[table.Columns[j].Name])
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return 0, &Error{Op: fmt.Sprintf("inserting row %d into", i), Schema: table.Schema, Table: table.Name, Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, &Error{Op: "committing insert", Schema: table.Schema, Table: table.Name, Err: err}
	}
	return len(rows), nil
}

// encode converts generated values into pgx-native parameter types.
func (p *Postgres) encode(col *schema.Column, v any) any {
	switch x := v.(type) {
	case valuegen.Decimal:
		return pgtype.Numeric{Int: x.Unscaled(), Exp: int32(-x.Scale()), Valid: true}
	case valuegen.Date:
		return pgtype.Date{Time: x.Time(), Valid: true}
	case string:
		switch p.types.Resolve(col.DataType) {
		case typemap.KindUUID:
			if u, err := uuid.Parse(x); err == nil {
				return pgtype.UUID{Bytes: u, Valid: true}
			}
		case typemap.KindTime:
			if t, err := time.Parse("15:04:05", x); err == nil {
				us := int64(t.Hour()*3600+t.Minute()*60+t.Second()) * int64(time.Second/time.Microsecond)
				return pgtype.Time{Microseconds: us, Valid: true}
			}
		}
	}
	if typemap.Normalize(col.DataType) == "money" && v != nil {
		return fmt.Sprint(v)
	}
	return v
}

func (p *Postgres) PrimaryKeyValues(ctx context.Context, table *schema.Table) ([]any, error) {
	pk, err := table.PrimaryKey()
	if err != nil || pk == nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s.%s",
		quoteIdentPg(pk.Name), quoteIdentPg(table.Schema), quoteIdentPg(table.Name))
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, &Error{Op: "reading primary keys of", Schema: table.Schema, Table: table.Name, Err: err}
	}
	defer rows.Close()

	kind := p.types.Resolve(pk.DataType)
	var values []any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, &Error{Op: "reading primary keys of", Schema: table.Schema, Table: table.Name, Err: err}
		}
		v := vals[0]
		if n, ok := v.(pgtype.Numeric); ok {
			v = numericToDecimal(n)
		}
		values = append(values, normalizeKey(kind, pk, v))
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "reading primary keys of", Schema: table.Schema, Table: table.Name, Err: err}
	}
	return values, nil
}

func numericToDecimal(n pgtype.Numeric) any {
	if !n.Valid || n.NaN || n.Int == nil {
		return nil
	}
	if n.Exp <= 0 {
		return valuegen.NewDecimal(n.Int, int(-n.Exp))
	}
	u := new(big.Int).Mul(n.Int, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	return valuegen.NewDecimal(u, 0)
}

func (p *Postgres) TableExists(ctx context.Context, schemaName, table string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, schemaName, table).Scan(&exists)
	if err != nil {
		return false, &Error{Op: "checking", Schema: schemaName, Table: table, Err: err}
	}
	return exists, nil
}

func (p *Postgres) CreateTable(ctx context.Context, ddl string) error {
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return &Error{Op: "creating table", Err: err}
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}
