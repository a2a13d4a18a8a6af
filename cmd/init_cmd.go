package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long:  `Walk through prompts to create a Rowforge configuration file at ~/.rowforge/rowforge.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Rowforge Configuration Setup")
		fmt.Println("============================")
		fmt.Println()

		fmt.Println("Source Database")
		fmt.Println("---------------")
		cfg := config.Default()
		src := &cfg.Source
		src.Type = prompt(reader, "Database type (postgresql/mysql/sqlite)", "postgresql")
		if src.Type == "sqlite" {
			src.Database = prompt(reader, "Database file", "./data.db")
		} else {
			src.Host = prompt(reader, "Host", "localhost")
			portStr := prompt(reader, "Port", defaultPort(src.Type))
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("invalid port: %s", portStr)
			}
			src.Port = port
			src.Database = prompt(reader, "Database name", "")
			src.Username = prompt(reader, "Username", "")
			src.Password = prompt(reader, "Password (or ${ENV:NAME})", "")
		}
		src.Schema = prompt(reader, "Schema (leave empty for default)", defaultSchemaFor(src.Type))
		fmt.Println()

		fmt.Println("Generation")
		fmt.Println("----------")
		rows, err := strconv.Atoi(prompt(reader, "Rows per table", "100"))
		if err != nil || rows < 1 {
			return fmt.Errorf("rows per table must be a positive integer")
		}
		cfg.Generation.RowsPerTable = rows
		if ignore := prompt(reader, "Tables to ignore (comma separated, globs allowed)", ""); ignore != "" {
			for _, name := range strings.Split(ignore, ",") {
				if name = strings.TrimSpace(name); name != "" {
					cfg.Tables.Ignore = append(cfg.Tables.Ignore, name)
				}
			}
		}
		fmt.Println()

		fmt.Println("Sink")
		fmt.Println("----")
		cfg.Sink.Type = prompt(reader, "Sink (database/topic/file/collection)", "database")
		switch cfg.Sink.Type {
		case "database":
		case "topic":
			cfg.Sink.Topic.Name = prompt(reader, "Topic name", "")
			brokers := prompt(reader, "Brokers (comma separated)", "localhost:9092")
			cfg.Sink.Topic.Brokers = strings.Split(brokers, ",")
			cfg.Sink.Topic.KeySerializer = prompt(reader, "Key serializer (string/json)", "string")
		case "file":
			cfg.Sink.File.OutputDir = prompt(reader, "Output directory", cfg.Sink.File.OutputDir)
			cfg.Sink.File.Delimiter = prompt(reader, "Delimiter", cfg.Sink.File.Delimiter)
		case "collection":
			cfg.Sink.Collection.ConnectionString = prompt(reader, "Connection string", "mongodb://localhost:27017")
			cfg.Sink.Collection.Database = prompt(reader, "Database name", src.Database)
			cfg.Sink.Collection.Prefix = prompt(reader, "Collection prefix", "")
		default:
			return fmt.Errorf("unknown sink %q", cfg.Sink.Type)
		}
		fmt.Println()

		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  rowforge tables      List the tables in the source schema")
		fmt.Println("  rowforge generate    Generate rows for every table")
		fmt.Println("  rowforge serve       Start the REST server")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func defaultPort(dbType string) string {
	switch dbType {
	case "mysql":
		return "3306"
	default:
		return "5432"
	}
}

func defaultSchemaFor(dbType string) string {
	switch dbType {
	case "postgresql":
		return "public"
	case "sqlite":
		return "main"
	default:
		return ""
	}
}
