// Package rowgen builds rows for a table and keeps primary keys unique.
package rowgen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/typemap"
	"github.com/rowforge/rowforge/internal/valuegen"
)

// DefaultMaxRetries caps consecutive primary key collisions for a single row.
const DefaultMaxRetries = 1000

// GenerationError reports why rows could not be generated for a table.
type GenerationError struct {
	Table  string
	Column string
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	msg := "generating rows for " + e.Table
	if e.Column != "" {
		msg += ": column " + e.Column
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces rows for a table descriptor.
type Generator struct {
	registry   *valuegen.Registry
	maxRetries int
	logger     *slog.Logger
}

// New creates a Generator. A non-positive maxRetries uses DefaultMaxRetries.
func New(reg *valuegen.Registry, maxRetries int, logger *slog.Logger) *Generator {
	if reg == nil {
		reg = valuegen.NewRegistry(nil)
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{registry: reg, maxRetries: maxRetries, logger: logger}
}

type columnGen struct {
	name string
	gen  valuegen.Generator
}

// Generate returns count rows for table. When the table has a primary key,
// every generated key is claimed in existing, so it is distinct from every
// other generated row and from every value already in the set. A nil set
// starts empty.
func (g *Generator) Generate(ctx context.Context, table *schema.Table, count int, existing *UniquenessSet) ([]schema.Row, error) {
	name := table.QualifiedName()
	pk, err := table.PrimaryKey()
	if err != nil {
		return nil, &GenerationError{Table: name, Reason: "resolving primary key", Err: err}
	}

	gens, err := g.resolve(table)
	if err != nil {
		return nil, err
	}

	if pk != nil && existing == nil {
		existing = NewUniquenessSet()
	}

	rows := make([]schema.Row, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &GenerationError{Table: name, Reason: fmt.Sprintf("cancelled after %d rows", i), Err: err}
		}

		row := generateRow(gens)
		if pk != nil {
			attempts := 0
			for !existing.Claim(row[pk.Name]) {
				attempts++
				if attempts >= g.maxRetries {
					return nil, &GenerationError{
						Table:  name,
						Column: pk.Name,
						Reason: fmt.Sprintf("no unique primary key after %d attempts", attempts),
					}
				}
				row = generateRow(gens)
			}
			if attempts > 0 {
				g.logger.Debug("primary key collisions resolved", "table", name, "row", i, "attempts", attempts)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// resolve builds one generator per column, rejecting non-nullable columns
// whose type has none.
func (g *Generator) resolve(table *schema.Table) ([]columnGen, error) {
	gens := make([]columnGen, len(table.Columns))
	for i, c := range table.Columns {
		if !c.Nullable && g.registry.Kind(c) == typemap.KindUnknown {
			return nil, &GenerationError{
				Table:  table.QualifiedName(),
				Column: c.Name,
				Reason: fmt.Sprintf("no value generator for type %q and column is not nullable", c.DataType),
			}
		}
		gens[i] = columnGen{name: c.Name, gen: g.registry.Resolve(c)}
	}
	return gens, nil
}

func generateRow(gens []columnGen) schema.Row {
	row := make(schema.Row, len(gens))
	for _, cg := range gens {
		row[cg.name] = cg.gen.Next()
	}
	return row
}
