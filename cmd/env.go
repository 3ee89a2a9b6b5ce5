package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spreadwatch/internal/fetcher"
	"github.com/sells-group/spreadwatch/internal/history"
	"github.com/sells-group/spreadwatch/internal/pipeline"
	"github.com/sells-group/spreadwatch/internal/resilience"
	"github.com/sells-group/spreadwatch/internal/store"
	"github.com/sells-group/spreadwatch/internal/waterfall"
	"github.com/sells-group/spreadwatch/internal/waterfall/provider"
)

// refreshEnv holds everything the refresh and schedule commands need.
type refreshEnv struct {
	Store    store.Store // nil when the audit store is disabled
	Docs     *history.FileStore
	Pipeline *pipeline.Pipeline
	Location *time.Location
}

// Close releases resources held by the environment.
func (e *refreshEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initRefresh builds the source cascade, stores and pipeline. breakers is
// shared across runs by the schedule command so an open circuit survives
// between ticks. Callers should defer env.Close().
func initRefresh(ctx context.Context, mode string, breakers *resilience.SourceBreakers) (*refreshEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	values, err := cfg.BaselineValues()
	if err != nil {
		return nil, err
	}
	baseline := waterfall.Baseline{Version: cfg.Baseline.Version, Values: values}
	if err := baseline.Validate(); err != nil {
		return nil, err
	}

	wcfg, reg, err := buildRegistry()
	if err != nil {
		return nil, err
	}
	if breakers == nil {
		breakers = newBreakers()
	}
	exec := waterfall.NewExecutor(wcfg, reg, breakers)

	// The audit store is optional; runs proceed without it.
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run audit store unavailable, runs will not be audited",
			zap.String("driver", cfg.Store.Driver),
			zap.Error(err),
		)
		st = nil
	}

	docs := history.NewFileStore(cfg.Output.Path, cfg.Output.HistoryWindow)
	p := pipeline.New(exec, docs, st, pipeline.Options{
		Location:      loc,
		Baseline:      baseline,
		LastKnownGood: cfg.Baseline.LastKnownGood,
		Window:        cfg.Output.HistoryWindow,
	})

	zap.L().Debug("refresh environment ready",
		zap.Strings("sources", reg.Names()),
		zap.String("output", cfg.Output.Path),
		zap.String("timezone", loc.String()),
	)
	return &refreshEnv{Store: st, Docs: docs, Pipeline: p, Location: loc}, nil
}

// buildRegistry resolves the source catalog against the sources file and the
// politeness/timeout settings.
func buildRegistry() (*waterfall.Config, *provider.Registry, error) {
	wcfg, err := waterfall.LoadConfig(cfg.Waterfall.SourcesFile)
	if err != nil {
		return nil, nil, err
	}
	// A sources file owns its defaults; otherwise they come from config.
	if cfg.Waterfall.SourcesFile == "" {
		if cfg.Waterfall.PolitenessDelayMs != 0 {
			wcfg.Defaults.PolitenessDelayMs = cfg.Waterfall.PolitenessDelayMs
		}
		if cfg.Waterfall.SourceTimeoutSecs > 0 {
			wcfg.Defaults.SourceTimeoutSecs = cfg.Waterfall.SourceTimeoutSecs
		}
	}

	defs, err := provider.Catalog()
	if err != nil {
		return nil, nil, err
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		Retry:        resilience.FromRetryConfig(cfg.Fetch.Retry.MaxAttempts, cfg.Fetch.Retry.InitialBackoffMs, cfg.Fetch.Retry.MaxBackoffMs),
	})
	reg, err := waterfall.BuildRegistry(wcfg, defs, f)
	if err != nil {
		return nil, nil, err
	}
	return wcfg, reg, nil
}

func newBreakers() *resilience.SourceBreakers {
	return resilience.NewSourceBreakers(resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutMins))
}

// initStore opens and migrates the run audit store. It returns nil when the
// store is disabled.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "none", "":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, eris.Wrap(err, "create store dir")
			}
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
