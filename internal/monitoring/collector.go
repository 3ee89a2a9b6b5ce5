package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/store"
	"github.com/sells-group/spreadwatch/internal/waterfall"
)

// SourceHealth counts one source's attempts within the lookback window.
type SourceHealth struct {
	Source   string  `json:"source"`
	Attempts int     `json:"attempts"`
	OK       int     `json:"ok"`
	Empty    int     `json:"empty"`
	Failed   int     `json:"failed"`
	Blocked  int     `json:"blocked"`
	FailRate float64 `json:"fail_rate"`
}

// MetricsSnapshot holds a point-in-time view of acquisition health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsPartial  int     `json:"runs_partial"`
	RunsStale    int     `json:"runs_stale"`
	RunsFailed   int     `json:"runs_failed"`
	FailRate     float64 `json:"fail_rate"`

	// StaleStreak is the number of most recent consecutive runs that produced
	// no live field, failed runs included.
	StaleStreak int `json:"stale_streak"`
	// LastLiveAt is when the newest run with at least one live field started.
	LastLiveAt time.Time `json:"last_live_at,omitempty"`

	// Sources lists per-source attempt counts, sorted by name. Skipped
	// attempts are not counted.
	Sources []SourceHealth `json:"sources"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the subset of store.Store the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run audit store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of acquisition metrics over the given lookback
// window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		StartedAfter:    now.Add(-time.Duration(lookbackHours) * time.Hour),
		IncludeAttempts: true,
		Limit:           10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	// Newest first, whatever order the store returned.
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })

	sources := make(map[string]*SourceHealth)
	streakOpen := true
	for _, r := range runs {
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusPartial:
			snap.RunsPartial++
		case model.RunStatusStale:
			snap.RunsStale++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}

		live := r.Status == model.RunStatusComplete || r.Status == model.RunStatusPartial
		if live && snap.LastLiveAt.IsZero() {
			snap.LastLiveAt = r.StartedAt
		}
		if streakOpen {
			if live {
				streakOpen = false
			} else {
				snap.StaleStreak++
			}
		}

		for _, a := range r.Attempts {
			status := waterfall.AttemptStatus(a.Status)
			if status == waterfall.AttemptSkipped || status == waterfall.AttemptCircuitOpen {
				continue
			}
			h, ok := sources[a.Source]
			if !ok {
				h = &SourceHealth{Source: a.Source}
				sources[a.Source] = h
			}
			h.Attempts++
			switch status {
			case waterfall.AttemptOK:
				h.OK++
			case waterfall.AttemptEmpty:
				h.Empty++
			case waterfall.AttemptBlocked:
				h.Blocked++
			default:
				h.Failed++
			}
		}
	}

	if snap.RunsTotal > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
	}
	for _, h := range sources {
		if h.Attempts > 0 {
			h.FailRate = float64(h.Failed+h.Blocked) / float64(h.Attempts)
		}
		snap.Sources = append(snap.Sources, *h)
	}
	sort.Slice(snap.Sources, func(i, j int) bool { return snap.Sources[i].Source < snap.Sources[j].Source })

	return snap, nil
}
