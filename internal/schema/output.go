package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a schema from a YAML file.
func LoadYAML(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	s := &Schema{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return s, nil
}

// WriteYAML writes the schema to a YAML file at the given path.
func (s *Schema) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// ToYAML returns the schema as a YAML byte slice.
func (s *Schema) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// Summary returns a human-readable summary of the schema.
func (s *Schema) Summary() string {
	var cols, keyed int
	for _, t := range s.Tables {
		cols += len(t.Columns)
		if pk, err := t.PrimaryKey(); err == nil && pk != nil {
			keyed++
		}
	}
	return fmt.Sprintf("Found %d tables, %d columns, %d with a single-column primary key",
		len(s.Tables), cols, keyed)
}

// Describe renders a table's columns as an aligned listing.
func (t *Table) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", t.QualifiedName())
	width := 0
	for _, c := range t.Columns {
		width = max(width, len(c.Name))
	}
	for _, c := range t.Columns {
		var flags []string
		if c.IsPrimaryKey {
			flags = append(flags, "pk")
		}
		if !c.Nullable {
			flags = append(flags, "not null")
		}
		typ := c.DataType
		switch {
		case c.Size != nil && c.Scale != nil:
			typ = fmt.Sprintf("%s(%d,%d)", typ, *c.Size, *c.Scale)
		case c.Size != nil:
			typ = fmt.Sprintf("%s(%d)", typ, *c.Size)
		}
		if c.Unsigned {
			typ += " unsigned"
		}
		fmt.Fprintf(&b, "  %-*s  %s", width, c.Name, typ)
		if len(flags) > 0 {
			fmt.Fprintf(&b, "  [%s]", strings.Join(flags, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
