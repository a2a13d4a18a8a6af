package schema

import (
	"errors"
	"fmt"
)

// ErrCompositeKey is returned for tables whose primary key spans more than one column.
var ErrCompositeKey = errors.New("composite primary keys are not supported")

// Schema is a set of introspected tables from one database schema.
type Schema struct {
	DatabaseType string  `yaml:"database_type" json:"databaseType"` // postgresql, mysql or sqlite
	Database     string  `yaml:"database,omitempty" json:"database,omitempty"`
	SchemaName   string  `yaml:"schema_name,omitempty" json:"schemaName,omitempty"`
	Tables       []Table `yaml:"tables" json:"tables"`
}

// Table describes a table's columns in ordinal order.
type Table struct {
	Schema  string   `yaml:"schema,omitempty" json:"schema,omitempty"`
	Name    string   `yaml:"name" json:"name"`
	Columns []Column `yaml:"columns" json:"columns"`
}

// Column describes a single table column.
type Column struct {
	Name         string `yaml:"name" json:"name"`
	DataType     string `yaml:"data_type" json:"dataType"`
	Nullable     bool   `yaml:"nullable" json:"nullable"`
	IsPrimaryKey bool   `yaml:"primary_key,omitempty" json:"isPrimaryKey"`
	Size         *int   `yaml:"size,omitempty" json:"size,omitempty"`  // max length or numeric precision
	Scale        *int   `yaml:"scale,omitempty" json:"scale,omitempty"` // numeric scale
	Unsigned     bool   `yaml:"unsigned,omitempty" json:"unsigned,omitempty"`
}

// Row is one generated record keyed by column name.
type Row map[string]any

// QualifiedName returns schema.table, or just the table name when no schema is set.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the single primary key column, or nil if the table has none.
func (t *Table) PrimaryKey() (*Column, error) {
	var pk *Column
	for i := range t.Columns {
		if !t.Columns[i].IsPrimaryKey {
			continue
		}
		if pk != nil {
			return nil, fmt.Errorf("table %s: %w", t.QualifiedName(), ErrCompositeKey)
		}
		pk = &t.Columns[i]
	}
	return pk, nil
}

// Values returns the row's values in the given column order.
func (r Row) Values(columns []string) []any {
	vals := make([]any, len(columns))
	for i, c := range columns {
		vals[i] = r[c]
	}
	return vals
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
