package waterfall

import (
	"time"

	"github.com/sells-group/spreadwatch/internal/model"
)

// State is the orchestrator state for one run.
type State string

// Orchestrator states. A run starts PENDING, moves to TRYING on the first
// source and ends SUFFICIENT or EXHAUSTED.
const (
	StatePending    State = "pending"
	StateTrying     State = "trying"
	StateSufficient State = "sufficient"
	StateExhausted  State = "exhausted"
)

// AttemptStatus classifies the outcome of one source attempt.
type AttemptStatus string

// Attempt outcomes.
const (
	AttemptOK          AttemptStatus = "ok"
	AttemptEmpty       AttemptStatus = "empty"
	AttemptFailed      AttemptStatus = "failed"
	AttemptBlocked     AttemptStatus = "blocked"
	AttemptSkipped     AttemptStatus = "skipped"
	AttemptCircuitOpen AttemptStatus = "circuit_open"
)

// Attempt records what one source contributed to a run.
type Attempt struct {
	Source   string           `json:"source"`
	Tier     int              `json:"tier"`
	Status   AttemptStatus    `json:"status"`
	Fields   []model.FieldKey `json:"fields,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration_ns"`
}

// Result is the merged output of a waterfall run, before baseline fill.
type Result struct {
	State      State               `json:"state"`
	Fields     model.FieldMap      `json:"fields"`
	Provenance model.ProvenanceMap `json:"provenance"`
	Attempts   []Attempt           `json:"attempts"`
	// Priority lists the source names in the order they were considered.
	Priority []string `json:"priority"`
}

// Sufficient reports whether every declared field was filled by live sources.
func (r *Result) Sufficient() bool {
	return r.State == StateSufficient
}
