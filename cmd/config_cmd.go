package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/typemap"
)

var typeMapOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and validate the Rowforge configuration and the column type mapping.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Source:\n")
		fmt.Printf("    Type:           %s\n", cfg.Source.Type)
		if cfg.Source.DSN != "" {
			fmt.Printf("    DSN:            %s\n", maskSecret(cfg.Source.DSN))
		} else {
			fmt.Printf("    Host:           %s\n", cfg.Source.Host)
			fmt.Printf("    Port:           %d\n", cfg.Source.Port)
			fmt.Printf("    Database:       %s\n", cfg.Source.Database)
			fmt.Printf("    Username:       %s\n", cfg.Source.Username)
			fmt.Printf("    Password:       %s\n", maskSecret(cfg.Source.Password))
		}
		fmt.Printf("    Schema:         %s\n", cfg.Source.Schema)
		fmt.Printf("    Max Conns:      %d\n", cfg.Source.MaxConnections)
		fmt.Println()
		fmt.Printf("  Generation:\n")
		fmt.Printf("    Rows/Table:     %d\n", cfg.Generation.RowsPerTable)
		fmt.Printf("    Transactions:   %d\n", cfg.Generation.Transactions)
		fmt.Printf("    Concurrency:    %d\n", cfg.Generation.Concurrency)
		if len(cfg.Tables.Include) > 0 {
			fmt.Printf("    Include:        %s\n", strings.Join(cfg.Tables.Include, ", "))
		}
		if len(cfg.Tables.Ignore) > 0 {
			fmt.Printf("    Ignore:         %s\n", strings.Join(cfg.Tables.Ignore, ", "))
		}
		fmt.Println()
		fmt.Printf("  Sink:\n")
		fmt.Printf("    Type:           %s\n", cfg.Sink.Type)
		switch cfg.Sink.Type {
		case "topic":
			fmt.Printf("    Topic:          %s\n", cfg.Sink.Topic.Name)
			fmt.Printf("    Brokers:        %s\n", strings.Join(cfg.Sink.Topic.Brokers, ", "))
			fmt.Printf("    Key Serializer: %s\n", cfg.Sink.Topic.KeySerializer)
			keys := make([]string, 0, len(cfg.Sink.Topic.Properties))
			for k := range cfg.Sink.Topic.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				v := cfg.Sink.Topic.Properties[k]
				if strings.Contains(k, "password") || strings.Contains(k, "secret") {
					v = maskSecret(v)
				}
				fmt.Printf("    %s: %s\n", k, v)
			}
		case "file":
			fmt.Printf("    Output Dir:     %s\n", cfg.Sink.File.OutputDir)
			fmt.Printf("    Header:         %t\n", *cfg.Sink.File.IncludeHeader)
			fmt.Printf("    Delimiter:      %q\n", cfg.Sink.File.Delimiter)
		case "collection":
			fmt.Printf("    Connection:     %s\n", maskSecret(cfg.Sink.Collection.ConnectionString))
			fmt.Printf("    Database:       %s\n", cfg.Sink.Collection.Database)
			fmt.Printf("    Prefix:         %s\n", cfg.Sink.Collection.Prefix)
		}

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		errs := cfg.Validate()
		tm := typemap.ForDatabase(cfg.Source.Type)
		if err := tm.ApplyOverrides(cfg.TypeOverrides); err != nil {
			errs = append(errs, err.Error())
		}

		if len(errs) > 0 {
			fmt.Println("Validation errors:")
			for _, e := range errs {
				fmt.Printf("  - %s\n", e)
			}
			return fmt.Errorf("%d validation error(s)", len(errs))
		}

		fmt.Println("Configuration is valid.")
		return nil
	},
}

var configTypeMappingCmd = &cobra.Command{
	Use:   "type-mapping",
	Short: "Show the column type to value kind mapping",
	Long: `Print the mapping for the configured database type with type_overrides
applied. Overridden entries are marked with *.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFile()
		if err != nil {
			return err
		}
		tm := typemap.ForDatabase(cfg.Source.Type)
		if err := tm.ApplyOverrides(cfg.TypeOverrides); err != nil {
			return err
		}

		if typeMapOutput != "" {
			if err := tm.WriteYAML(typeMapOutput); err != nil {
				return err
			}
			fmt.Printf("Type map written to %s\n", typeMapOutput)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tKIND\t")
		for _, tag := range tm.SortedTypes() {
			mark := ""
			if tm.IsOverridden(tag) {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", tag, tm.Resolve(tag), mark)
		}
		return w.Flush()
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configTypeMappingCmd.Flags().StringVarP(&typeMapOutput, "output", "o", "", "write the mapping to this YAML file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configTypeMappingCmd)
	rootCmd.AddCommand(configCmd)
}
