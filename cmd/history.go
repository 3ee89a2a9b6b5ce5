package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/spreadwatch/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the daily spread history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		doc := history.NewFileStore(cfg.Output.Path, cfg.Output.HistoryWindow).Load()
		if doc.Empty() {
			fmt.Fprintln(os.Stderr, "No yields document found.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(doc.History)
		}
		formatHistory(os.Stdout, doc.History)
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("json", false, "print the history as JSON")
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes history entries, newest first.
func formatHistory(out io.Writer, entries []history.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tBTP10Y\tBUND10Y\tSPREAD")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		_, _ = fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%d\n", e.Date, e.BTP10Y, e.Bund10Y, e.Spread)
	}
	_ = w.Flush()
}
