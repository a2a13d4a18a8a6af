package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.rowforge/rowforge.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version       int               `yaml:"version"`
	Source        SourceConfig      `yaml:"source"`
	Generation    GenerationConfig  `yaml:"generation,omitempty"`
	Tables        TablesConfig      `yaml:"tables,omitempty"`
	Sink          SinkConfig        `yaml:"sink"`
	TypeOverrides map[string]string `yaml:"type_overrides,omitempty"` // type tag -> value kind
	History       HistoryConfig     `yaml:"history,omitempty"`
	Server        ServerConfig      `yaml:"server,omitempty"`
	Logging       LogConfig         `yaml:"logging,omitempty"`
}

// SourceConfig defines the database the rows are generated for.
type SourceConfig struct {
	Type           string `yaml:"type"` // postgresql, mysql or sqlite
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	Database       string `yaml:"database,omitempty"`
	Schema         string `yaml:"schema,omitempty"`
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	SSL            bool   `yaml:"ssl,omitempty"`
	DSN            string `yaml:"dsn,omitempty"`             // overrides host/port/database/username/password
	MaxConnections int    `yaml:"max_connections,omitempty"` // default 10, max 64
}

// GenerationConfig sets defaults for generation requests.
type GenerationConfig struct {
	RowsPerTable int           `yaml:"rows_per_table,omitempty"` // default 100
	Transactions int           `yaml:"transactions,omitempty"`   // default 1
	Concurrency  int           `yaml:"concurrency,omitempty"`    // default 10, max 64
	MaxPKRetries int           `yaml:"max_pk_retries,omitempty"` // default 1000
	Timeout      time.Duration `yaml:"timeout,omitempty"`        // 0 means no timeout
	CacheKeys    bool          `yaml:"cache_keys,omitempty"`     // reuse seeded primary keys across runs
}

// TablesConfig selects the tables for multi-table runs.
type TablesConfig struct {
	Include []string `yaml:"include,omitempty"`
	Ignore  []string `yaml:"ignore,omitempty"` // exact names or globs like "audit_*"
}

// SinkConfig selects where generated rows go.
type SinkConfig struct {
	Type       string           `yaml:"type"` // database, topic, file or collection
	Topic      TopicConfig      `yaml:"topic,omitempty"`
	File       FileConfig       `yaml:"file,omitempty"`
	Collection CollectionConfig `yaml:"collection,omitempty"`
}

// TopicConfig defines the Kafka topic sink.
type TopicConfig struct {
	Name            string            `yaml:"name"`
	Brokers         []string          `yaml:"brokers,omitempty"`          // default localhost:9092
	KeySerializer   string            `yaml:"key_serializer,omitempty"`   // string or json
	ValueSerializer string            `yaml:"value_serializer,omitempty"` // json
	Properties      map[string]string `yaml:"properties,omitempty"`
}

// FileConfig defines the CSV file sink.
type FileConfig struct {
	OutputDir     string `yaml:"output_dir,omitempty"`     // default ./output
	IncludeHeader *bool  `yaml:"include_header,omitempty"` // default true
	Delimiter     string `yaml:"delimiter,omitempty"`      // default ","
}

// CollectionConfig defines the MongoDB collection sink.
type CollectionConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Database         string `yaml:"database"`
	Prefix           string `yaml:"prefix,omitempty"`
}

// HistoryConfig defines where run results are kept.
type HistoryConfig struct {
	Path     string `yaml:"path,omitempty"` // default ~/.rowforge/history.db
	Disabled bool   `yaml:"disabled,omitempty"`
}

// ServerConfig defines the REST server.
type ServerConfig struct {
	Port int `yaml:"port,omitempty"` // default 8230
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.rowforge/logs/
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// Default returns a config with every default applied and no source set.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.ApplyDefaults()
	return cfg
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// ApplyDefaults fills unset fields and clamps limits.
func (c *Config) ApplyDefaults() {
	if c.Source.MaxConnections == 0 {
		c.Source.MaxConnections = 10
	}
	if c.Source.MaxConnections > 64 {
		c.Source.MaxConnections = 64
	}
	if c.Source.Schema == "" && c.Source.Type == "postgresql" {
		c.Source.Schema = "public"
	}
	if c.Generation.RowsPerTable == 0 {
		c.Generation.RowsPerTable = 100
	}
	if c.Generation.Transactions == 0 {
		c.Generation.Transactions = 1
	}
	if c.Generation.Concurrency == 0 {
		c.Generation.Concurrency = 10
	}
	if c.Generation.Concurrency > 64 {
		c.Generation.Concurrency = 64
	}
	if c.Generation.MaxPKRetries == 0 {
		c.Generation.MaxPKRetries = 1000
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "database"
	}
	if len(c.Sink.Topic.Brokers) == 0 {
		c.Sink.Topic.Brokers = []string{"localhost:9092"}
	}
	if c.Sink.Topic.KeySerializer == "" {
		c.Sink.Topic.KeySerializer = "string"
	}
	if c.Sink.Topic.ValueSerializer == "" {
		c.Sink.Topic.ValueSerializer = "json"
	}
	if c.Sink.File.OutputDir == "" {
		c.Sink.File.OutputDir = "./output"
	}
	if c.Sink.File.IncludeHeader == nil {
		t := true
		c.Sink.File.IncludeHeader = &t
	}
	if c.Sink.File.Delimiter == "" {
		c.Sink.File.Delimiter = ","
	}
	if c.History.Path == "" {
		c.History.Path = ExpandHome("~/.rowforge/history.db")
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8230
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.rowforge/logs/")
	}
}

// Validate reports every missing or inconsistent field.
func (c *Config) Validate() []string {
	var errs []string
	if c.Source.Type == "" {
		errs = append(errs, "source.type is required")
	}
	if c.Source.DSN == "" && c.Source.Type != "sqlite" && c.Source.Host == "" {
		errs = append(errs, "source.host or source.dsn is required")
	}
	if c.Source.Type == "sqlite" && c.Source.DSN == "" && c.Source.Database == "" {
		errs = append(errs, "source.database (file path) or source.dsn is required for sqlite")
	}
	switch c.Sink.Type {
	case "database", "file":
	case "topic":
		if c.Sink.Topic.Name == "" {
			errs = append(errs, "sink.topic.name is required for the topic sink")
		}
		if c.Sink.Topic.KeySerializer != "string" && c.Sink.Topic.KeySerializer != "json" {
			errs = append(errs, "sink.topic.key_serializer must be string or json")
		}
		if c.Sink.Topic.ValueSerializer != "json" {
			errs = append(errs, "sink.topic.value_serializer must be json")
		}
	case "collection":
		if c.Sink.Collection.ConnectionString == "" {
			errs = append(errs, "sink.collection.connection_string is required for the collection sink")
		}
		if c.Sink.Collection.Database == "" {
			errs = append(errs, "sink.collection.database is required for the collection sink")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown sink.type %q (expected database, topic, file or collection)", c.Sink.Type))
	}
	if len([]rune(c.Sink.File.Delimiter)) != 1 {
		errs = append(errs, "sink.file.delimiter must be a single character")
	}
	if c.Generation.RowsPerTable < 1 {
		errs = append(errs, "generation.rows_per_table must be at least 1")
	}
	if c.Generation.Transactions < 1 {
		errs = append(errs, "generation.transactions must be at least 1")
	}
	return errs
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Source.Password, err = ResolveValue(c.Source.Password)
	if err != nil {
		return fmt.Errorf("source password: %w", err)
	}
	c.Source.DSN, err = ResolveValue(c.Source.DSN)
	if err != nil {
		return fmt.Errorf("source dsn: %w", err)
	}
	c.Sink.Collection.ConnectionString, err = ResolveValue(c.Sink.Collection.ConnectionString)
	if err != nil {
		return fmt.Errorf("collection connection string: %w", err)
	}
	for k, v := range c.Sink.Topic.Properties {
		if c.Sink.Topic.Properties[k], err = ResolveValue(v); err != nil {
			return fmt.Errorf("topic property %s: %w", k, err)
		}
	}
	return nil
}

// ResolveValue resolves secret references in a string value. Text around the
// reference is kept, so "postgres://app:${ENV:PGPASS}@db/app" works.
func ResolveValue(val string) (string, error) {
	var resolveErr error
	out := secretPattern.ReplaceAllStringFunc(val, func(m string) string {
		if resolveErr != nil {
			return m
		}
		parts := secretPattern.FindStringSubmatch(m)
		v, err := resolveRef(parts[1], parts[2])
		if err != nil {
			resolveErr = err
			return m
		}
		return v
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

func resolveRef(provider, ref string) (string, error) {
	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
