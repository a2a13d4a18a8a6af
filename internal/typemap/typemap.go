package typemap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the logical value kind a column type generates.
type Kind string

const (
	KindTinyInt   Kind = "tinyint"
	KindSmallInt  Kind = "smallint"
	KindMediumInt Kind = "mediumint"
	KindInteger   Kind = "integer"
	KindBigInt    Kind = "bigint"
	KindNumeric   Kind = "numeric"
	KindVarchar   Kind = "varchar"
	KindText      Kind = "text"
	KindDate      Kind = "date"
	KindTimestamp Kind = "timestamp"
	KindBoolean   Kind = "boolean"
	KindBytes     Kind = "bytes"
	KindUUID      Kind = "uuid"
	KindFloat     Kind = "float"
	KindTime      Kind = "time"
	KindUnknown   Kind = "unknown"
)

// AllKinds lists every kind that has a value generator.
var AllKinds = []Kind{
	KindTinyInt,
	KindSmallInt,
	KindMediumInt,
	KindInteger,
	KindBigInt,
	KindNumeric,
	KindVarchar,
	KindText,
	KindDate,
	KindTimestamp,
	KindBoolean,
	KindBytes,
	KindUUID,
	KindFloat,
	KindTime,
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllKinds {
		if k == known {
			return k, nil
		}
	}
	if k == KindUnknown {
		return k, nil
	}
	return "", fmt.Errorf("unknown value kind %q", s)
}

// TypeMap holds the mapping from column type tags to value kinds.
type TypeMap struct {
	Mappings  map[string]Kind `yaml:"mappings"`
	Overrides map[string]Kind `yaml:"overrides,omitempty"`
	defaults  map[string]Kind // not serialized; populated by ForDatabase
}

func common() map[string]Kind {
	return map[string]Kind{
		"int2":                        KindSmallInt,
		"smallint":                    KindSmallInt,
		"smallserial":                 KindSmallInt,
		"int4":                        KindInteger,
		"int":                         KindInteger,
		"integer":                     KindInteger,
		"serial":                      KindInteger,
		"money":                       KindInteger,
		"int8":                        KindBigInt,
		"bigint":                      KindBigInt,
		"bigserial":                   KindBigInt,
		"numeric":                     KindNumeric,
		"decimal":                     KindNumeric,
		"varchar":                     KindVarchar,
		"character varying":           KindVarchar,
		"char":                        KindVarchar,
		"character":                   KindVarchar,
		"text":                        KindText,
		"date":                        KindDate,
		"timestamp":                   KindTimestamp,
		"timestamptz":                 KindTimestamp,
		"timestamp with time zone":    KindTimestamp,
		"timestamp without time zone": KindTimestamp,
		"bool":                        KindBoolean,
		"boolean":                     KindBoolean,
		"bytea":                       KindBytes,
		"uuid":                        KindUUID,
		"real":                        KindFloat,
		"float4":                      KindFloat,
		"float8":                      KindFloat,
		"double precision":            KindFloat,
		"time":                        KindTime,
		"time without time zone":      KindTime,
	}
}

// DefaultPostgres returns the default type mapping for PostgreSQL.
func DefaultPostgres() *TypeMap {
	m := common()
	m["bpchar"] = KindVarchar
	m["citext"] = KindText
	return &TypeMap{Mappings: m}
}

// DefaultMySQL returns the default type mapping for MySQL and MariaDB.
func DefaultMySQL() *TypeMap {
	m := common()
	for k, v := range map[string]Kind{
		"tinyint":    KindTinyInt,
		"mediumint":  KindMediumInt,
		"nvarchar":   KindVarchar,
		"tinytext":   KindText,
		"mediumtext": KindText,
		"longtext":   KindText,
		"datetime":   KindTimestamp,
		"bit":        KindBoolean,
		"blob":       KindBytes,
		"longblob":   KindBytes,
		"binary":     KindBytes,
		"varbinary":  KindBytes,
		"float":      KindFloat,
		"double":     KindFloat,
	} {
		m[k] = v
	}
	return &TypeMap{Mappings: m}
}

// DefaultSQLite returns the default type mapping for SQLite declared types.
func DefaultSQLite() *TypeMap {
	m := common()
	for k, v := range map[string]Kind{
		"tinyint":  KindTinyInt,
		"nvarchar": KindVarchar,
		"clob":     KindText,
		"datetime": KindTimestamp,
		"blob":     KindBytes,
		"float":    KindFloat,
		"double":   KindFloat,
	} {
		m[k] = v
	}
	return &TypeMap{Mappings: m}
}

// ForDatabase returns a TypeMap with defaults for the given database type.
func ForDatabase(dbType string) *TypeMap {
	var tm *TypeMap
	switch strings.ToLower(dbType) {
	case "mysql", "mariadb":
		tm = DefaultMySQL()
	case "sqlite", "sqlite3":
		tm = DefaultSQLite()
	default:
		tm = DefaultPostgres()
	}
	tm.defaults = make(map[string]Kind, len(tm.Mappings))
	for k, v := range tm.Mappings {
		tm.defaults[k] = v
	}
	if tm.Overrides == nil {
		tm.Overrides = make(map[string]Kind)
	}
	return tm
}

// Normalize lowercases a type tag and strips any length or precision suffix,
// so "VARCHAR(20)" and "numeric(10, 2)" resolve like "varchar" and "numeric".
func Normalize(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexByte(t, '('); i >= 0 {
		rest := ""
		if j := strings.IndexByte(t[i:], ')'); j >= 0 {
			rest = t[i+j+1:]
		}
		t = strings.TrimSpace(t[:i]) + rest
	}
	t = strings.TrimSuffix(t, " zerofill")
	t = strings.TrimSuffix(t, " unsigned")
	return strings.Join(strings.Fields(t), " ")
}

// IsUnsigned reports whether a declared type such as "int(10) unsigned"
// carries the unsigned attribute.
func IsUnsigned(tag string) bool {
	for _, f := range strings.Fields(strings.ToLower(tag)) {
		if f == "unsigned" {
			return true
		}
	}
	return false
}

// Resolve returns the kind for the given type tag, or KindUnknown.
func (tm *TypeMap) Resolve(tag string) Kind {
	if k, ok := tm.Mappings[Normalize(tag)]; ok {
		return k
	}
	return KindUnknown
}

// Override applies a user override for a type tag.
func (tm *TypeMap) Override(tag string, kind Kind) {
	tag = Normalize(tag)
	tm.Mappings[tag] = kind
	if tm.Overrides == nil {
		tm.Overrides = make(map[string]Kind)
	}
	if tm.defaults != nil {
		if def, ok := tm.defaults[tag]; ok && def == kind {
			delete(tm.Overrides, tag)
			return
		}
	}
	tm.Overrides[tag] = kind
}

// ApplyOverrides validates and applies a tag -> kind map, typically from config.
func (tm *TypeMap) ApplyOverrides(overrides map[string]string) error {
	for tag, name := range overrides {
		kind, err := ParseKind(name)
		if err != nil {
			return fmt.Errorf("type override %q: %w", tag, err)
		}
		tm.Override(tag, kind)
	}
	return nil
}

// RestoreDefault restores the default mapping for a type tag.
func (tm *TypeMap) RestoreDefault(tag string) {
	tag = Normalize(tag)
	if tm.defaults == nil {
		return
	}
	if def, ok := tm.defaults[tag]; ok {
		tm.Mappings[tag] = def
	} else {
		delete(tm.Mappings, tag)
	}
	delete(tm.Overrides, tag)
}

// IsOverridden returns true if the type tag has been overridden from its default.
func (tm *TypeMap) IsOverridden(tag string) bool {
	_, ok := tm.Overrides[Normalize(tag)]
	return ok
}

// SortedTypes returns the mapped type tags sorted alphabetically.
func (tm *TypeMap) SortedTypes() []string {
	types := make([]string, 0, len(tm.Mappings))
	for k := range tm.Mappings {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// WriteYAML writes the type mapping to a YAML file.
func (tm *TypeMap) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(tm)
	if err != nil {
		return fmt.Errorf("marshaling type map: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// LoadYAML reads a type mapping from a YAML file.
func LoadYAML(path string) (*TypeMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading type map file: %w", err)
	}
	tm := &TypeMap{}
	if err := yaml.Unmarshal(data, tm); err != nil {
		return nil, fmt.Errorf("parsing type map: %w", err)
	}
	if tm.Mappings == nil {
		tm.Mappings = make(map[string]Kind)
	}
	if tm.Overrides == nil {
		tm.Overrides = make(map[string]Kind)
	}
	return tm, nil
}
