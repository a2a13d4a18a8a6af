// Package sink delivers generated rows to a database, a Kafka topic, a CSV
// file or a MongoDB collection.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rowforge/rowforge/internal/connector"
	"github.com/rowforge/rowforge/internal/schema"
)

// ErrEmptyBatch is wrapped when a sink that produces artifacts gets no rows.
var ErrEmptyBatch = errors.New("no rows to write")

// Sink writes batches of rows for one table at a time.
type Sink interface {
	Name() string
	Write(ctx context.Context, table *schema.Table, rows []schema.Row) (Result, error)
	Close() error
}

// Result describes one successful Write.
type Result struct {
	Rows     int    `json:"rows"`
	Artifact string `json:"artifact,omitempty"` // file path for the file sink
}

// Kind classifies sink failures.
type Kind string

const (
	KindWrite      Kind = "write"
	KindIO         Kind = "io"
	KindEmptyBatch Kind = "empty_batch"
)

// Error is returned by every sink Write.
type Error struct {
	Kind  Kind
	Sink  string
	Table string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s sink (%s) %s: %v", e.Sink, e.Kind, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Target selects a sink. The variants are DatabaseTarget, TopicTarget,
// FileTarget and CollectionTarget.
type Target interface {
	sinkName() string
}

// DatabaseTarget inserts rows through the connector they were generated for.
type DatabaseTarget struct {
	Connector connector.Connector
}

// TopicTarget publishes one Kafka message per row.
type TopicTarget struct {
	Topic           string
	Brokers         []string
	KeySerializer   string // string or json
	ValueSerializer string // json
	Properties      map[string]string
}

// FileTarget writes one CSV file per table per call.
type FileTarget struct {
	OutputDir     string
	IncludeHeader bool
	Delimiter     rune
}

// CollectionTarget inserts one MongoDB document per row.
type CollectionTarget struct {
	ConnectionString string
	Database         string
	Prefix           string // prepended to the table name to form the collection name
}

func (DatabaseTarget) sinkName() string   { return "database" }
func (TopicTarget) sinkName() string      { return "topic" }
func (FileTarget) sinkName() string       { return "file" }
func (CollectionTarget) sinkName() string { return "collection" }

// Name returns the sink name for a target.
func Name(t Target) string {
	if t == nil {
		return ""
	}
	return t.sinkName()
}

// Open builds the sink for a target.
func Open(ctx context.Context, t Target, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch tt := t.(type) {
	case DatabaseTarget:
		if tt.Connector == nil {
			return nil, fmt.Errorf("database sink requires a connector")
		}
		return NewDatabase(tt.Connector), nil
	case TopicTarget:
		return NewTopic(tt, logger)
	case FileTarget:
		return NewFile(tt)
	case CollectionTarget:
		return NewCollection(ctx, tt)
	default:
		return nil, fmt.Errorf("unsupported sink target %T", t)
	}
}
