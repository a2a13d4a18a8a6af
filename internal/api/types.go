package api

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/engine"
)

// ConnectionRequest identifies the database and, for single-table calls,
// the table. Empty fields fall back to the server's config.
type ConnectionRequest struct {
	DBType   string `json:"db_type"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	SSL      bool   `json:"ssl,omitempty"`
	DSN      string `json:"dsn,omitempty"`
	Table    string `json:"table,omitempty"`

	Sink *SinkRequest `json:"sink,omitempty"`

	// Shortcuts for the sink object: a topic name selects the topic sink
	// and write_to_csv the file sink.
	Topic       string            `json:"topic,omitempty"`
	KafkaConfig map[string]string `json:"kafka_config,omitempty"`
	WriteToCSV  bool              `json:"write_to_csv,omitempty"`
}

// SinkRequest selects and configures the sink.
type SinkRequest struct {
	Type       string             `json:"type"`
	Topic      *TopicRequest      `json:"topic,omitempty"`
	File       *FileRequest       `json:"file,omitempty"`
	Collection *CollectionRequest `json:"collection,omitempty"`
}

type TopicRequest struct {
	Name            string            `json:"name"`
	Brokers         []string          `json:"brokers,omitempty"`
	KeySerializer   string            `json:"key_serializer,omitempty"`
	ValueSerializer string            `json:"value_serializer,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
}

type FileRequest struct {
	OutputDir     string `json:"output_dir,omitempty"`
	IncludeHeader *bool  `json:"include_header,omitempty"`
	Delimiter     string `json:"delimiter,omitempty"`
}

type CollectionRequest struct {
	ConnectionString string `json:"connection_string"`
	Database         string `json:"database"`
	Prefix           string `json:"prefix,omitempty"`
}

// InsertAllRequest is the request body for POST /api/insert-all.
type InsertAllRequest struct {
	ConnectionRequest
	IncludeTables []string `json:"include_tables,omitempty"`
	IgnoreTables  []string `json:"ignore_tables,omitempty"`
	RowsPerTable  int      `json:"rows_per_table,omitempty"`
	Transactions  int      `json:"transactions,omitempty"`
	Concurrency   int      `json:"concurrency,omitempty"`
	Timeout       string   `json:"timeout,omitempty"` // Go duration, e.g. "30s"
}

// InvalidateRequest is the request body for POST /api/cache/invalidate.
// An empty table drops every cached table in the schema.
type InvalidateRequest struct {
	ConnectionRequest
}

// InvalidateResponse reports how many cached key sets were dropped.
type InvalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

// TablesResponse is the API response for POST /api/tables.
type TablesResponse struct {
	Schema string   `json:"schema"`
	Tables []string `json:"tables"`
}

// RunsResponse is the API response for GET /api/runs.
type RunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

// RunSummary is one run in a history listing.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	DBType      string    `json:"db_type"`
	Schema      string    `json:"schema"`
	Sink        string    `json:"sink"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	TotalRows   int       `json:"total_rows"`
}

func summarize(r *engine.BatchResult) RunSummary {
	return RunSummary{
		RunID:       r.RunID.String(),
		DBType:      r.DBType,
		Schema:      r.Schema,
		Sink:        r.Sink,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		TotalRows:   r.TotalRows,
	}
}

func (c ConnectionRequest) toSourceConfig() config.SourceConfig {
	return config.SourceConfig{
		Type:     c.DBType,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Schema:   c.Schema,
		Username: c.Username,
		Password: c.Password,
		SSL:      c.SSL,
		DSN:      c.DSN,
	}
}

// toSinkConfig merges the request's sink selection over defaults. A
// requested output_dir is resolved under the configured one.
func (c ConnectionRequest) toSinkConfig(defaults config.SinkConfig) (config.SinkConfig, error) {
	out := defaults
	switch {
	case c.Sink != nil:
		out.Type = c.Sink.Type
		if t := c.Sink.Topic; t != nil {
			out.Topic.Name = t.Name
			if len(t.Brokers) > 0 {
				out.Topic.Brokers = t.Brokers
			}
			if t.KeySerializer != "" {
				out.Topic.KeySerializer = t.KeySerializer
			}
			if t.ValueSerializer != "" {
				out.Topic.ValueSerializer = t.ValueSerializer
			}
			if t.Properties != nil {
				out.Topic.Properties = t.Properties
			}
		}
		if f := c.Sink.File; f != nil {
			if f.OutputDir != "" {
				if !filepath.IsLocal(f.OutputDir) {
					return out, &engine.RequestError{Field: "sink.file.output_dir", Reason: fmt.Sprintf("must be a relative path inside the output directory: %q", f.OutputDir)}
				}
				out.File.OutputDir = filepath.Join(defaults.File.OutputDir, f.OutputDir)
			}
			if f.IncludeHeader != nil {
				out.File.IncludeHeader = f.IncludeHeader
			}
			if f.Delimiter != "" {
				out.File.Delimiter = f.Delimiter
			}
		}
		if m := c.Sink.Collection; m != nil {
			out.Collection = config.CollectionConfig{
				ConnectionString: m.ConnectionString,
				Database:         m.Database,
				Prefix:           m.Prefix,
			}
		}
	case c.Topic != "":
		out.Type = "topic"
		out.Topic.Name = c.Topic
		if c.KafkaConfig != nil {
			out.Topic.Properties = c.KafkaConfig
		}
	case c.WriteToCSV:
		out.Type = "file"
	}
	return out, nil
}

func (r InsertAllRequest) toGenerateRequest(defaults config.SinkConfig) (engine.GenerateRequest, error) {
	var timeout time.Duration
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return engine.GenerateRequest{}, &engine.RequestError{Field: "timeout", Reason: fmt.Sprintf("is not a duration: %q", r.Timeout)}
		}
		timeout = d
	}
	sink, err := r.toSinkConfig(defaults)
	if err != nil {
		return engine.GenerateRequest{}, err
	}
	return engine.GenerateRequest{
		Source:       r.toSourceConfig(),
		Include:      r.IncludeTables,
		Ignore:       r.IgnoreTables,
		Rows:         r.RowsPerTable,
		Transactions: r.Transactions,
		Sink:         sink,
		Concurrency:  r.Concurrency,
		Timeout:      timeout,
	}, nil
}
