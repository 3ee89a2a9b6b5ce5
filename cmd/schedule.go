package main

import (
	"context"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spreadwatch/internal/api"
	"github.com/sells-group/spreadwatch/internal/monitoring"
	"github.com/sells-group/spreadwatch/internal/resilience"
	"github.com/sells-group/spreadwatch/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Refresh on a cron schedule, optionally serving the API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// One breaker set for the life of the process so a failing source
		// stays skipped across ticks until its reset timeout elapses.
		breakers := newBreakers()
		env, err := initRefresh(ctx, "schedule", breakers)
		if err != nil {
			return err
		}
		defer env.Close()

		spec, _ := cmd.Flags().GetString("cron")
		if spec == "" {
			spec = cfg.Schedule.Cron
		}

		sched := scheduler.New(env.Location, time.Duration(cfg.Schedule.RunTimeoutSecs)*time.Second)
		job := scheduler.JobFunc("refresh", func(ctx context.Context) error {
			result, err := env.Pipeline.Run(ctx, time.Now())
			if err != nil {
				return err
			}
			zap.L().Info("scheduled refresh done",
				zap.String("status", string(result.Status)),
				zap.Int("sources_ok", attemptsOK(result.Attempts)),
				zap.Strings("open_circuits", openCircuits(breakers.States())),
			)
			return nil
		})
		if err := sched.AddJob(spec, job); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)

		if noServe, _ := cmd.Flags().GetBool("no-serve"); !noServe && cfg.Server.Port > 0 {
			srv := api.New(api.Config{Port: cfg.Server.Port, CORSOrigins: cfg.Server.CORSOrigins}, env.Docs, env.Store)
			g.Go(func() error { return srv.Run(gctx) })
		}

		if cfg.Monitoring.WebhookURL != "" && env.Store != nil {
			checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			g.Go(func() error {
				checker.Run(gctx)
				return nil
			})
		}

		g.Go(func() error {
			if cfg.Schedule.RunOnStart {
				if err := sched.RunNow(gctx, job); err != nil {
					zap.L().Error("initial refresh failed", zap.Error(err))
				}
			}
			zap.L().Info("scheduler started", zap.String("cron", spec), zap.Time("next", sched.Next()))
			return sched.Run(gctx)
		})

		return g.Wait()
	},
}

func init() {
	scheduleCmd.Flags().String("cron", "", "cron spec (default from config)")
	scheduleCmd.Flags().Bool("no-serve", false, "do not start the embedded API server")
	rootCmd.AddCommand(scheduleCmd)
}

// openCircuits returns the sorted names of sources whose breaker is not
// closed.
func openCircuits(states map[string]resilience.CircuitState) []string {
	var out []string
	for name, st := range states {
		if st != resilience.CircuitClosed {
			out = append(out, name+"="+st.String())
		}
	}
	sort.Strings(out)
	return out
}
