package waterfall

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/resilience"
	"github.com/sells-group/spreadwatch/internal/scrape"
	"github.com/sells-group/spreadwatch/internal/waterfall/provider"
)

// Executor runs the source cascade for one acquisition.
type Executor struct {
	cfg      *Config
	registry *provider.Registry
	breakers *resilience.SourceBreakers
	now      func() time.Time // injectable for testing
}

// NewExecutor creates a waterfall executor. breakers may be nil, in which
// case every source is always attempted.
func NewExecutor(cfg *Config, registry *provider.Registry, breakers *resilience.SourceBreakers) *Executor {
	if cfg == nil {
		cfg = Defaults()
	}
	return &Executor{
		cfg:      cfg,
		registry: registry,
		breakers: breakers,
		now:      time.Now,
	}
}

// WithNow sets the clock used for attempt durations.
func (e *Executor) WithNow(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Run tries sources in priority order until every declared field is filled
// or the sources are exhausted. Source failures only shrink the result; the
// returned error is non-nil only for configuration errors and cancellation.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		State:      StatePending,
		Fields:     make(model.FieldMap),
		Provenance: make(model.ProvenanceMap),
	}
	providers := e.registry.Ordered()
	for _, p := range providers {
		result.Priority = append(result.Priority, p.Name())
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if d := e.cfg.PolitenessDelay(); d > 0 {
		limiter = rate.NewLimiter(rate.Every(d), 1)
	}

	for _, p := range providers {
		if !result.Fields.Complete() {
			result.State = StateTrying
		}

		// Covers both a source with nothing left to add and every source
		// after sufficiency; both are audited as skipped.
		if result.Fields.Has(p.Fields()...) {
			result.Attempts = append(result.Attempts, Attempt{
				Source: p.Name(), Tier: p.Tier(), Status: AttemptSkipped,
			})
			zap.L().Debug("waterfall: source adds nothing, skipped", zap.String("source", p.Name()))
			continue
		}

		cb := e.breakers.Get(p.Name())
		if err := cb.Allow(); err != nil {
			result.Attempts = append(result.Attempts, Attempt{
				Source: p.Name(), Tier: p.Tier(), Status: AttemptCircuitOpen, Error: err.Error(),
			})
			zap.L().Info("waterfall: source circuit open, skipped", zap.String("source", p.Name()))
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "waterfall: politeness wait")
		}

		attempt, err := e.attempt(ctx, p, result)
		if err != nil {
			return nil, err
		}
		cb.Record(attempt.Error == "")
		result.Attempts = append(result.Attempts, attempt)
	}

	if result.Fields.Complete() {
		result.State = StateSufficient
	} else {
		result.State = StateExhausted
	}

	zap.L().Info("waterfall: run complete",
		zap.String("state", string(result.State)),
		zap.Int("fields", len(result.Fields)),
		zap.Int("attempts", len(result.Attempts)),
	)
	return result, nil
}

// attempt queries one source under its timeout and merges new fields into
// result, first writer wins.
func (e *Executor) attempt(ctx context.Context, p provider.Provider, result *Result) (Attempt, error) {
	a := Attempt{Source: p.Name(), Tier: p.Tier()}
	start := e.now()

	qctx, cancel := context.WithTimeout(ctx, e.cfg.TimeoutFor(p.Name()))
	fields, err := p.Query(qctx)
	cancel()
	a.Duration = e.now().Sub(start)

	if err != nil {
		if provider.IsFatal(err) {
			return a, eris.Wrapf(err, "waterfall: source %s", p.Name())
		}
		if ctx.Err() != nil {
			return a, eris.Wrap(ctx.Err(), "waterfall: run cancelled")
		}
		a.Error = err.Error()
		switch {
		case scrape.IsBlocked(err):
			a.Status = AttemptBlocked
		case eris.Is(err, provider.ErrNoFields):
			a.Status = AttemptEmpty
		default:
			a.Status = AttemptFailed
		}
		zap.L().Warn("waterfall: source failed",
			zap.String("source", p.Name()),
			zap.String("status", string(a.Status)),
			zap.Duration("duration", a.Duration),
			zap.Error(err),
		)
		return a, nil
	}

	for _, k := range model.AllFields {
		fv, ok := fields[k]
		if !ok || !provider.CanProvide(p, k) {
			continue
		}
		if _, taken := result.Fields[k]; taken {
			continue
		}
		result.Fields[k] = fv
		result.Provenance[k] = p.Name()
		a.Fields = append(a.Fields, k)
	}

	a.Status = AttemptOK
	if len(a.Fields) == 0 {
		a.Status = AttemptEmpty
	}
	zap.L().Info("waterfall: source contributed",
		zap.String("source", p.Name()),
		zap.Int("new_fields", len(a.Fields)),
		zap.Duration("duration", a.Duration),
	)
	return a, nil
}
