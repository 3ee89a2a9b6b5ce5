package model

import "time"

// RunStatus is the outcome of one acquisition run.
type RunStatus string

const (
	// RunStatusComplete means live sources filled every field.
	RunStatusComplete RunStatus = "complete"
	// RunStatusPartial means some fields came from the baseline.
	RunStatusPartial RunStatus = "partial"
	// RunStatusStale means every field came from the baseline.
	RunStatusStale RunStatus = "stale"
	// RunStatusFailed means the run aborted or could not persist its output.
	RunStatusFailed RunStatus = "failed"
)

// SourceAttempt is the audit record of one source queried during a run.
type SourceAttempt struct {
	Source     string     `json:"source"`
	Tier       int        `json:"tier"`
	Status     string     `json:"status"`
	Fields     []FieldKey `json:"fields,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Run is the audit record of one acquisition run.
type Run struct {
	ID              string          `json:"id"`
	AsOf            string          `json:"as_of"`
	Status          RunStatus       `json:"status"`
	Source          string          `json:"source,omitempty"`
	Stale           bool            `json:"stale"`
	SpreadBps       int             `json:"spread_bps"`
	BaselineVersion string          `json:"baseline_version,omitempty"`
	Error           string          `json:"error,omitempty"`
	Attempts        []SourceAttempt `json:"attempts,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}
