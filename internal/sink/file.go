package sink

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rowforge/rowforge/internal/schema"
)

// File writes each batch to a new CSV file.
type File struct {
	dir       string
	header    bool
	delimiter rune
	now       func() time.Time
}

// NewFile creates a file sink writing under t.OutputDir.
func NewFile(t FileTarget) (*File, error) {
	dir := t.OutputDir
	if dir == "" {
		dir = "./output"
	}
	delim := t.Delimiter
	if delim == 0 {
		delim = ','
	}
	if delim == '"' || delim == '\r' || delim == '\n' {
		return nil, fmt.Errorf("invalid CSV delimiter %q", delim)
	}
	return &File{dir: dir, header: t.IncludeHeader, delimiter: delim, now: time.Now}, nil
}

func (f *File) Name() string { return "file" }

// Write creates <schema>_<table>_<unix millis>_<suffix>.csv and returns its path
// as the artifact. Existing files are never overwritten.
func (f *File) Write(_ context.Context, table *schema.Table, rows []schema.Row) (Result, error) {
	name := table.QualifiedName()
	if len(rows) == 0 {
		return Result{}, &Error{Kind: KindEmptyBatch, Sink: f.Name(), Table: name, Err: ErrEmptyBatch}
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return Result{}, &Error{Kind: KindIO, Sink: f.Name(), Table: name, Err: fmt.Errorf("creating output directory: %w", err)}
	}

	path := filepath.Join(f.dir, f.fileName(table))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Result{}, &Error{Kind: KindIO, Sink: f.Name(), Table: name, Err: err}
	}

	if err := f.writeCSV(file, table, rows); err != nil {
		file.Close()
		os.Remove(path)
		return Result{}, &Error{Kind: KindIO, Sink: f.Name(), Table: name, Err: err}
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return Result{}, &Error{Kind: KindIO, Sink: f.Name(), Table: name, Err: err}
	}
	return Result{Rows: len(rows), Artifact: path}, nil
}

func (f *File) fileName(table *schema.Table) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	base := table.Name
	if table.Schema != "" {
		base = table.Schema + "_" + table.Name
	}
	return fmt.Sprintf("%s_%d_%s.csv", base, f.now().UTC().UnixMilli(), suffix)
}

func (f *File) writeCSV(file *os.File, table *schema.Table, rows []schema.Row) error {
	w := csv.NewWriter(file)
	w.Comma = f.delimiter

	cols := table.ColumnNames()
	if f.header {
		if err := w.Write(cols); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	record := make([]string, len(cols))
	for i, row := range rows {
		for j, c := range cols {
			record[j] = formatValue(row[c])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}

// formatValue renders a generated value as CSV text. Nulls become empty fields.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return `\x` + hex.EncodeToString(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func (f *File) Close() error { return nil }
