package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"

	// source overrides shared by every command that connects to a database
	srcFlags config.SourceConfig
)

var rootCmd = &cobra.Command{
	Use:   "rowforge",
	Short: "Rowforge: dummy data for relational tables",
	Long: `Rowforge introspects PostgreSQL, MySQL and SQLite tables, generates
type-correct rows with unique primary keys, and writes them to the database,
a Kafka topic, CSV files or a MongoDB collection.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.rowforge/rowforge.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// addSourceFlags registers the connection flags on cmd.
func addSourceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&srcFlags.Type, "db-type", "", "database type (postgresql, mysql, sqlite)")
	f.StringVar(&srcFlags.Host, "host", "", "database host")
	f.IntVar(&srcFlags.Port, "port", 0, "database port")
	f.StringVar(&srcFlags.Database, "database", "", "database name, or file path for sqlite")
	f.StringVar(&srcFlags.Schema, "schema", "", "schema name")
	f.StringVar(&srcFlags.Username, "user", "", "database user")
	f.StringVar(&srcFlags.Password, "password", "", "database password (supports ${ENV:...}, ${VAULT:...}, ${AWS_SM:...})")
	f.StringVar(&srcFlags.DSN, "dsn", "", "connection string; overrides host, port, database, user and password")
}

// loadConfig reads the config file and applies source flags. A source type
// is required.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfigFile()
	if err != nil {
		return nil, err
	}
	if err := applySourceFlags(cmd, &cfg.Source); err != nil {
		return nil, err
	}
	if cfg.Source.Type == "" {
		return nil, fmt.Errorf("no database type: set source.type in the config or pass --db-type")
	}
	return cfg, nil
}

// loadConfigFile reads the config file, falling back to defaults when no file
// was requested and the default file does not exist.
func loadConfigFile() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if cfgFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func applySourceFlags(cmd *cobra.Command, src *config.SourceConfig) error {
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if fl := f.Lookup(name); fl != nil && fl.Changed {
			apply()
		}
	}
	set("db-type", func() { src.Type = srcFlags.Type })
	set("host", func() { src.Host = srcFlags.Host })
	set("port", func() { src.Port = srcFlags.Port })
	set("database", func() { src.Database = srcFlags.Database })
	set("schema", func() { src.Schema = srcFlags.Schema })
	set("user", func() { src.Username = srcFlags.Username })

	var err error
	set("password", func() { src.Password, err = config.ResolveValue(srcFlags.Password) })
	if err != nil {
		return fmt.Errorf("resolving --password: %w", err)
	}
	set("dsn", func() { src.DSN, err = config.ResolveValue(srcFlags.DSN) })
	if err != nil {
		return fmt.Errorf("resolving --dsn: %w", err)
	}
	return nil
}

// newLogger sets up file and stderr logging, falling back to stderr only.
func newLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Directory)
	if err != nil {
		logger = logging.New(os.Stderr, cfg.Logging.Level)
		logger.Warn("file logging disabled", "error", err)
	}
	return logger
}

// newEngine builds an engine without run history, for read-only commands.
func newEngine(cfg *config.Config) *engine.Engine {
	return engine.New(cfg, newLogger(cfg))
}
