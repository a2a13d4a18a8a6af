package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/history"
	"github.com/rowforge/rowforge/internal/report"
)

var (
	genTable       string
	genInclude     []string
	genIgnore      []string
	genRows        int
	genTxns        int
	genConcurrency int
	genTimeout     time.Duration
	genSink        string
	genTopic       string
	genBrokers     []string
	genOutputDir   string
	genNoHeader    bool
	genDelimiter   string
	genMongoURI    string
	genMongoDB     string
	genMongoPrefix string
	genJSON        bool
	genReport      string
	genSelect      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate dummy rows and write them to a sink",
	Long: `Generate rows for one table (--table) or for every selected table in the
schema, and write them to the database, a Kafka topic, CSV files or a MongoDB
collection. A table that fails is reported and does not stop the others.`,
	Example: `  rowforge generate --db-type postgresql --host localhost --database app --table orders --rows 500 --txns 4
  rowforge generate --ignore 'audit_*' --sink file --output-dir ./out
  rowforge generate --select --include 'order_*' --rows 50
  rowforge generate --sink topic --topic dummy-rows --brokers kafka:9092`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applySinkFlags(cmd, &cfg.Sink)

		logger := newLogger(cfg)

		var opts []engine.Option
		if !cfg.History.Disabled {
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				logger.Warn("run history disabled", "error", err)
			} else {
				defer store.Close()
				opts = append(opts, engine.WithHistory(store))
			}
		}
		eng := engine.New(cfg, logger, opts...)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		include := genInclude
		if genSelect {
			include, err = pickTables(ctx, eng, cfg.Source, genInclude, genIgnore)
			if err != nil {
				return err
			}
		}

		result, err := eng.Generate(ctx, engine.GenerateRequest{
			Table:        genTable,
			Include:      include,
			Ignore:       genIgnore,
			Rows:         genRows,
			Transactions: genTxns,
			Concurrency:  genConcurrency,
			Timeout:      genTimeout,
		})
		if err != nil {
			return err
		}

		if genJSON {
			if err := printJSON(result); err != nil {
				return err
			}
		} else {
			printResult(result)
		}

		if genReport != "" {
			if err := report.Write(report.Build(result), genReport); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			logger.Info("report written", "path", genReport)
		}

		if result.Failed > 0 {
			return fmt.Errorf("%d of %d tables failed", result.Failed, len(result.Tables))
		}
		return nil
	},
}

func applySinkFlags(cmd *cobra.Command, s *config.SinkConfig) {
	f := cmd.Flags()
	if f.Changed("sink") {
		s.Type = genSink
	}
	if f.Changed("topic") {
		s.Topic.Name = genTopic
		if !f.Changed("sink") {
			s.Type = "topic"
		}
	}
	if f.Changed("brokers") {
		s.Topic.Brokers = genBrokers
	}
	if f.Changed("output-dir") {
		s.File.OutputDir = genOutputDir
	}
	if f.Changed("no-header") {
		header := !genNoHeader
		s.File.IncludeHeader = &header
	}
	if f.Changed("delimiter") {
		s.File.Delimiter = genDelimiter
	}
	if f.Changed("mongo-uri") {
		s.Collection.ConnectionString = genMongoURI
	}
	if f.Changed("mongo-db") {
		s.Collection.Database = genMongoDB
	}
	if f.Changed("collection-prefix") {
		s.Collection.Prefix = genMongoPrefix
	}
}

func printResult(r *engine.BatchResult) {
	fmt.Printf("Run %s (%s, schema %s, sink %s)\n\n", r.RunID, r.DBType, r.Schema, r.Sink)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tSTATUS\tROWS\tTXNS\tDURATION\tDETAIL")
	for _, name := range r.TableNames() {
		o := r.Tables[name]
		detail := o.Error
		if detail == "" && len(o.Artifacts) > 0 {
			detail = o.Artifacts[len(o.Artifacts)-1]
			if len(o.Artifacts) > 1 {
				detail = fmt.Sprintf("%s (+%d more)", detail, len(o.Artifacts)-1)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", name, o.Status, o.RowsWritten, o.Transactions, o.Duration.Round(time.Millisecond), detail)
	}
	w.Flush()

	for _, name := range r.Skipped {
		fmt.Printf("skipped %s\n", name)
	}
	fmt.Printf("\n%s\n", r.Summary())
}

func init() {
	addSourceFlags(generateCmd)
	f := generateCmd.Flags()
	f.StringVarP(&genTable, "table", "t", "", "generate for a single table, using --txns sequential transactions")
	f.StringSliceVar(&genInclude, "include", nil, "tables to generate for (names or globs like 'order_*'); default all")
	f.StringSliceVar(&genIgnore, "ignore", nil, "tables to skip (names or globs)")
	f.IntVarP(&genRows, "rows", "n", 0, "rows per table per transaction (default from config, 100)")
	f.IntVar(&genTxns, "txns", 0, "transactions per table (default from config, 1)")
	f.IntVar(&genConcurrency, "concurrency", 0, "tables processed at once (default from config, 10)")
	f.DurationVar(&genTimeout, "timeout", 0, "abort the run after this long")
	f.StringVar(&genSink, "sink", "", "sink: database, topic, file or collection")
	f.StringVar(&genTopic, "topic", "", "Kafka topic (implies --sink topic)")
	f.StringSliceVar(&genBrokers, "brokers", nil, "Kafka brokers")
	f.StringVar(&genOutputDir, "output-dir", "", "CSV output directory")
	f.BoolVar(&genNoHeader, "no-header", false, "omit the CSV header line")
	f.StringVar(&genDelimiter, "delimiter", "", "CSV delimiter")
	f.StringVar(&genMongoURI, "mongo-uri", "", "MongoDB connection string for the collection sink")
	f.StringVar(&genMongoDB, "mongo-db", "", "MongoDB database for the collection sink")
	f.StringVar(&genMongoPrefix, "collection-prefix", "", "prefix for collection names")
	f.BoolVar(&genJSON, "json", false, "print the result as JSON")
	f.StringVar(&genReport, "report", "", "write a run report to this file (.json for JSON, text otherwise)")
	f.BoolVar(&genSelect, "select", false, "choose tables interactively; --include pre-checks them")
	generateCmd.MarkFlagsMutuallyExclusive("table", "include")
	generateCmd.MarkFlagsMutuallyExclusive("table", "select")
	rootCmd.AddCommand(generateCmd)
}
