package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var introspectOutput string

var introspectCmd = &cobra.Command{
	Use:   "introspect [table]",
	Short: "Show table metadata",
	Long: `Connect to the source database and print column names, types, nullability,
lengths and primary key flags. Without a table argument every table in the
schema is described; --output also writes the metadata as YAML.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		eng := newEngine(cfg)
		ctx := context.Background()

		if len(args) == 1 {
			t, err := eng.Introspect(ctx, cfg.Source, args[0])
			if err != nil {
				return err
			}
			fmt.Print(t.Describe())
			return nil
		}

		s, err := eng.Describe(ctx, cfg.Source)
		if err != nil {
			return err
		}
		fmt.Println(s.Summary())
		for _, t := range s.Tables {
			fmt.Println()
			fmt.Print(t.Describe())
		}

		if introspectOutput != "" {
			if err := s.WriteYAML(introspectOutput); err != nil {
				return fmt.Errorf("writing schema: %w", err)
			}
			fmt.Printf("\nSchema written to %s\n", introspectOutput)
		}
		return nil
	},
}

func init() {
	addSourceFlags(introspectCmd)
	introspectCmd.Flags().StringVarP(&introspectOutput, "output", "o", "", "write the schema to this YAML file")
	rootCmd.AddCommand(introspectCmd)
}
