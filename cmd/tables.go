package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/picker"
	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/selection"
)

var (
	tablesMatch  string
	tablesSelect bool
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables in the source schema",
	Long: `List tables in the source schema. With --select, pick tables interactively
and print the chosen names, one per line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		eng := newEngine(cfg)

		var names []string
		if tablesSelect {
			var include []string
			if tablesMatch != "" {
				include = []string{tablesMatch}
			}
			names, err = pickTables(context.Background(), eng, cfg.Source, include, nil)
		} else {
			names, err = eng.Tables(context.Background(), cfg.Source)
			if tablesMatch != "" {
				names = selection.FilterByPattern(names, tablesMatch)
			}
		}
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

// pickTables introspects the schema and lets the user choose tables in a
// terminal selector. Ignored tables are left out; include pre-checks rows.
func pickTables(ctx context.Context, eng *engine.Engine, src config.SourceConfig, include, ignore []string) ([]string, error) {
	s, err := eng.Describe(ctx, src)
	if err != nil {
		return nil, err
	}

	var (
		tables    []schema.Table
		available []string
	)
	for _, t := range s.Tables {
		if selection.Ignored(t.Name, ignore) {
			continue
		}
		tables = append(tables, t)
		available = append(available, t.Name)
	}

	var preSelected []string
	if len(include) > 0 {
		preSelected, _ = selection.Resolve(include, available, nil)
	}
	// The selector draws on stderr so stdout stays free for output.
	return picker.Run(tables, preSelected, os.Stderr)
}

func init() {
	addSourceFlags(tablesCmd)
	tablesCmd.Flags().StringVar(&tablesMatch, "match", "", "only list tables matching this glob (pre-checks them with --select)")
	tablesCmd.Flags().BoolVar(&tablesSelect, "select", false, "choose tables interactively")
	rootCmd.AddCommand(tablesCmd)
}
