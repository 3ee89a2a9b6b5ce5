// Package pipeline runs one acquisition: query the source cascade, complete
// the result from the baseline, derive the spread, update the history log
// and persist the output document.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spreadwatch/internal/history"
	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/store"
	"github.com/sells-group/spreadwatch/internal/waterfall"
)

// Acquirer produces the merged live fields for one run.
type Acquirer interface {
	Run(ctx context.Context) (*waterfall.Result, error)
}

// DocumentStore loads and persists the output document.
type DocumentStore interface {
	Load() *history.Document
	Save(doc *history.Document) error
}

// Options configures a Pipeline.
type Options struct {
	// Location determines the calendar day of a run.
	Location *time.Location
	Baseline waterfall.Baseline
	// LastKnownGood completes missing fields from the previous document's
	// live values before falling back to the baseline.
	LastKnownGood bool
	// Window is the number of history entries retained.
	Window int
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Status   model.RunStatus
	Document *history.Document
	Attempts []waterfall.Attempt
}

// Pipeline wires the acquisition stages together.
type Pipeline struct {
	acq  Acquirer
	docs DocumentStore
	runs store.Store
	opts Options
}

// New creates a Pipeline. runs may be nil to skip the audit trail.
func New(acq Acquirer, docs DocumentStore, runs store.Store, opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Window <= 0 {
		opts.Window = history.RetentionWindow
	}
	if opts.Baseline.Values == nil {
		opts.Baseline = waterfall.DefaultBaseline()
	}
	return &Pipeline{acq: acq, docs: docs, runs: runs, opts: opts}
}

// Run performs one acquisition as of the given instant. Source failures never
// fail a run; the returned error reports cancellation, configuration errors
// and failure to persist the document.
func (p *Pipeline) Run(ctx context.Context, asOf time.Time) (*Result, error) {
	started := time.Now().UTC()
	day := model.AcquisitionDate(asOf, p.opts.Location)
	log := zap.L().With(zap.String("as_of", day))
	log.Info("pipeline: starting acquisition")

	prev := p.docs.Load()

	baseline := p.opts.Baseline
	if p.opts.LastKnownGood && !prev.Empty() {
		baseline = waterfall.LastKnownGood(baseline, &prev.Snapshot)
	}

	wr, err := p.acq.Run(ctx)
	if err != nil {
		err = eris.Wrap(err, "pipeline: acquire")
		p.record(ctx, &model.Run{AsOf: day, Status: model.RunStatusFailed, Error: err.Error(), StartedAt: started})
		return nil, err
	}

	fields := wr.Fields.Clone()
	prov := wr.Provenance.Clone()
	stale := baseline.Fill(fields, prov)

	snap := model.Snapshot{
		Timestamp:  asOf.UTC(),
		AsOf:       day,
		Source:     prov.Label(wr.Priority),
		Stale:      stale,
		Fields:     fields,
		Provenance: prov,
		Derived:    model.ComputeDerived(fields),
	}
	status := runStatus(wr, stale)
	if status != model.RunStatusComplete {
		snap.BaselineVersion = baseline.Version
	}

	doc := &history.Document{
		Snapshot: snap,
		History:  history.Upsert(prev.History, history.EntryFromSnapshot(&snap), p.opts.Window),
	}

	run := &model.Run{
		AsOf:            day,
		Status:          status,
		Source:          snap.Source,
		Stale:           stale,
		SpreadBps:       snap.SpreadBasisPoints,
		BaselineVersion: snap.BaselineVersion,
		Attempts:        auditAttempts(wr.Attempts),
		StartedAt:       started,
	}

	// A cancelled run leaves the previous document in place.
	if err := ctx.Err(); err != nil {
		err = eris.Wrap(err, "pipeline: cancelled before save")
		run.Status, run.Error = model.RunStatusFailed, err.Error()
		p.record(ctx, run)
		return nil, err
	}

	if err := p.docs.Save(doc); err != nil {
		err = eris.Wrap(err, "pipeline: persist document")
		run.Status, run.Error = model.RunStatusFailed, err.Error()
		p.record(ctx, run)
		return nil, err
	}
	p.record(ctx, run)

	log.Info("pipeline: acquisition complete",
		zap.String("status", string(status)),
		zap.String("source", snap.Source),
		zap.Bool("stale", stale),
		zap.Int("spread_bps", snap.SpreadBasisPoints),
		zap.Int("spread_change_bps", snap.SpreadChangeBasisPoints),
	)
	return &Result{RunID: run.ID, Status: status, Document: doc, Attempts: wr.Attempts}, nil
}

// record writes the audit entry. Failures are logged only; the document is
// the system of record. The write outlives ctx so that runs killed by a
// timeout or signal are still audited as failed.
func (p *Pipeline) record(ctx context.Context, run *model.Run) {
	if p.runs == nil {
		return
	}
	run.FinishedAt = time.Now().UTC()
	if err := p.runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Warn("pipeline: failed to record run", zap.String("as_of", run.AsOf), zap.Error(err))
	}
}

func runStatus(wr *waterfall.Result, stale bool) model.RunStatus {
	switch {
	case stale:
		return model.RunStatusStale
	case wr.Sufficient():
		return model.RunStatusComplete
	default:
		return model.RunStatusPartial
	}
}

func auditAttempts(attempts []waterfall.Attempt) []model.SourceAttempt {
	out := make([]model.SourceAttempt, len(attempts))
	for i, a := range attempts {
		out[i] = model.SourceAttempt{
			Source:     a.Source,
			Tier:       a.Tier,
			Status:     string(a.Status),
			Fields:     a.Fields,
			Error:      a.Error,
			DurationMs: a.Duration.Milliseconds(),
		}
	}
	return out
}
