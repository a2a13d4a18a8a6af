package connector

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
)

// MySQLDriver opens MySQL and MariaDB connectors.
type MySQLDriver struct{}

func (MySQLDriver) Name() string { return "mysql" }

func (MySQLDriver) Supports(dbType string) bool {
	return supports(dbType, "mysql", "mariadb")
}

func (MySQLDriver) Open(ctx context.Context, cfg *config.SourceConfig) (Connector, error) {
	dsn, err := mysqlDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening MySQL: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging MySQL: %w", err)
	}

	return &MySQL{sqlDB{
		db:      db,
		types:   typemap.ForDatabase("mysql"),
		quote:   quoteIdentMySQL,
		qualify: qualifyMySQL,
	}}, nil
}

func qualifyMySQL(schemaName, table string) string {
	if schemaName == "" {
		return quoteIdentMySQL(table)
	}
	return quoteIdentMySQL(schemaName) + "." + quoteIdentMySQL(table)
}

func mysqlDSN(cfg *config.SourceConfig) (string, error) {
	if cfg.DSN != "" {
		if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
			return "", fmt.Errorf("parsing MySQL DSN: %w", err)
		}
		return cfg.DSN, nil
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	if cfg.SSL {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN(), nil
}

// MySQL implements Connector for MySQL. An empty schema name means the
// connection's default database.
type MySQL struct {
	sqlDB
}

type mysqlColumn struct {
	Name      string `db:"column_name"`
	DataType  string `db:"data_type"`
	FullType  string `db:"column_type"`
	Nullable  string `db:"is_nullable"`
	MaxLength *int64 `db:"max_length"`
	Precision *int64 `db:"numeric_precision"`
	Scale     *int64 `db:"numeric_scale"`
	Key       string `db:"column_key"`
}

func (m *MySQL) TableNames(ctx context.Context, schemaName string) ([]string, error) {
	var names []string
	err := m.db.SelectContext(ctx, &names, `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schemaName)
	if err != nil {
		return nil, &Error{Op: "listing tables", Schema: schemaName, Err: err}
	}
	return names, nil
}

func (m *MySQL) TableMetadata(ctx context.Context, schemaName, table string) (*schema.Table, error) {
	var cols []mysqlColumn
	err := m.db.SelectContext(ctx, &cols, `
		SELECT
			column_name AS column_name,
			data_type AS data_type,
			column_type AS column_type,
			is_nullable AS is_nullable,
			character_maximum_length AS max_length,
			numeric_precision AS numeric_precision,
			numeric_scale AS numeric_scale,
			column_key AS column_key
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_name = ?
		ORDER BY ordinal_position`, schemaName, table)
	if err != nil {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: err}
	}
	if len(cols) == 0 {
		return nil, &Error{Op: "introspecting", Schema: schemaName, Table: table, Err: ErrTableNotFound}
	}

	t := &schema.Table{Schema: schemaName, Name: table}
	for _, c := range cols {
		col := schema.Column{
			Name:         c.Name,
			DataType:     c.DataType,
			Nullable:     c.Nullable == "YES",
			IsPrimaryKey: c.Key == "PRI",
			Size:         nullableInt(c.MaxLength),
			Unsigned:     typemap.IsUnsigned(c.FullType),
		}
		if m.types.Resolve(c.DataType) == typemap.KindNumeric {
			col.Size = nullableInt(c.Precision)
			col.Scale = nullableInt(c.Scale)
		}
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}

func (m *MySQL) TableExists(ctx context.Context, schemaName, table string) (bool, error) {
	var n int
	err := m.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_name = ?`, schemaName, table)
	if err != nil {
		return false, &Error{Op: "checking", Schema: schemaName, Table: table, Err: err}
	}
	return n > 0, nil
}
