package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/history"
	"github.com/rowforge/rowforge/internal/report"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past generation runs",
	Long:  `List recent runs newest first, or show the per-table results of one run.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFile()
		if err != nil {
			return err
		}
		if cfg.History.Disabled {
			return fmt.Errorf("run history is disabled in the config")
		}

		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			run, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if historyJSON {
				return printJSON(run)
			}
			fmt.Print(report.FormatText(report.Build(run)))
			return nil
		}

		runs, err := store.List(historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTARTED\tDB\tSCHEMA\tSINK\tOK\tFAILED\tROWS")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
				r.RunID, r.StartedAt.Local().Format(time.DateTime), r.DBType, r.Schema, r.Sink,
				r.Succeeded, r.Failed, r.TotalRows)
		}
		return w.Flush()
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(historyCmd)
}
