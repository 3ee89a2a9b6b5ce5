package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/pipeline"
	"github.com/sells-group/spreadwatch/internal/waterfall"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one acquisition and update the yields document",
	Long:  "Queries the source chain once, completes missing fields from the baseline, updates the history log and atomically rewrites the output document. Source failures never fail the command; only configuration, cancellation and persistence errors do.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRefresh(ctx, "refresh", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, time.Now())
		if err != nil {
			return err
		}

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			formatRefreshResult(os.Stdout, result)
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolP("quiet", "q", false, "suppress the run summary")
	rootCmd.AddCommand(refreshCmd)
}

// formatRefreshResult writes the per-source attempts and the resulting
// snapshot summary to w.
func formatRefreshResult(out io.Writer, r *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tTIER\tSTATUS\tFIELDS\tDURATION\tERROR")
	for _, a := range r.Attempts {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			a.Source,
			a.Tier,
			a.Status,
			fieldList(a.Fields),
			a.Duration.Round(time.Millisecond),
			truncate(a.Error, 60),
		)
	}
	_ = w.Flush()

	doc := r.Document
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "As of:\t%s\n", doc.AsOf)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", doc.Source)
	for _, k := range model.AllFields {
		v := doc.Fields[k]
		_, _ = fmt.Fprintf(w, "%s:\t%.3f\t%+.3f\t%s\n", k, v.Value, v.Change, doc.Provenance[k])
	}
	_, _ = fmt.Fprintf(w, "Spread:\t%d bp\t%+d bp\n", doc.SpreadBasisPoints, doc.SpreadChangeBasisPoints)
	if doc.BaselineVersion != "" {
		_, _ = fmt.Fprintf(w, "Baseline:\t%s\n", doc.BaselineVersion)
	}
	if r.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", r.RunID)
	}
	_ = w.Flush()
}

func fieldList(keys []model.FieldKey) string {
	if len(keys) == 0 {
		return "-"
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return strings.Join(names, ",")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// attemptsOK counts attempts that contributed fields.
func attemptsOK(attempts []waterfall.Attempt) int {
	n := 0
	for _, a := range attempts {
		if a.Status == waterfall.AttemptOK {
			n++
		}
	}
	return n
}
