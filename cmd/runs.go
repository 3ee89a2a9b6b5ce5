package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/monitoring"
	"github.com/sells-group/spreadwatch/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect acquisition run history",
	Long:  "Commands for listing, viewing, and summarizing acquisition runs recorded in the audit store.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List acquisition runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		asOf, _ := cmd.Flags().GetString("as-of")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			AsOf:   asOf,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		since, _ := cmd.Flags().GetDuration("since")
		formatRunStats(os.Stdout, computeRunStats(runs, since, time.Now()))
		return nil
	},
}

// -- runs health --

var runsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show source and run health over the monitoring window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs health")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return err
		}
		for _, a := range monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", a.Severity, a.Message)
		}
		return nil
	},
}

func init() {
	runsHealthCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	runsCmd.AddCommand(runsHealthCmd)

	runsListCmd.Flags().String("status", "", "filter by run status (complete, partial, stale, failed)")
	runsListCmd.Flags().String("as-of", "", "filter by acquisition date (YYYY-MM-DD)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

func openRunStore(cmd *cobra.Command) (store.Store, error) {
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("run store disabled (store.driver=none)")
	}
	return st, nil
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Partial    int
	Stale      int
	Failed     int
	AvgSpread  float64
	AvgDurSecs float64
	// SourceOK counts, per source, the attempts that supplied fields.
	SourceOK map[string]int
}

// computeRunStats aggregates runs started within since of now. A zero since
// includes every run.
func computeRunStats(runs []model.Run, since time.Duration, now time.Time) runStats {
	s := runStats{SourceOK: make(map[string]int)}

	var totalDur time.Duration
	var spreadSum, spreadCount int

	for _, r := range runs {
		if since > 0 && r.StartedAt.Before(now.Add(-since)) {
			continue
		}
		s.Total++
		totalDur += r.FinishedAt.Sub(r.StartedAt)

		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
		case model.RunStatusPartial:
			s.Partial++
		case model.RunStatusStale:
			s.Stale++
		case model.RunStatusFailed:
			s.Failed++
		}
		if r.Status != model.RunStatusFailed {
			spreadSum += r.SpreadBps
			spreadCount++
		}
		for _, a := range r.Attempts {
			if a.Status == "ok" {
				s.SourceOK[a.Source]++
			}
		}
	}

	if s.Total > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(s.Total)
	}
	if spreadCount > 0 {
		s.AvgSpread = float64(spreadSum) / float64(spreadCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAS_OF\tSTATUS\tSOURCE\tSPREAD\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t------\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		spread := "-"
		if r.Status != model.RunStatusFailed {
			spread = fmt.Sprintf("%d", r.SpreadBps)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.AsOf,
			r.Status,
			truncate(r.Source, 30),
			spread,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Partial:\t%d\n", s.Partial)
	_, _ = fmt.Fprintf(w, "Stale:\t%d\n", s.Stale)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	if s.AvgSpread != 0 {
		_, _ = fmt.Fprintf(w, "Avg spread:\t%.1f bp\n", s.AvgSpread)
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	for _, name := range sortedKeys(s.SourceOK) {
		_, _ = fmt.Fprintf(w, "  %s ok:\t%d\n", name, s.SourceOK[name])
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
