// Package store keeps the audit trail of acquisition runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spreadwatch/internal/model"
)

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	AsOf   string          `json:"as_of,omitempty"`
	// StartedAfter keeps runs started at or after the given instant.
	StartedAfter time.Time `json:"started_after,omitempty"`
	// IncludeAttempts loads each run's source attempts.
	IncludeAttempts bool `json:"include_attempts,omitempty"`
	Limit           int  `json:"limit,omitempty"`
	Offset          int  `json:"offset,omitempty"`
}

// Store defines the persistence interface for run audit records.
type Store interface {
	// RecordRun inserts a finished run and its source attempts. An empty ID
	// is assigned.
	RecordRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
