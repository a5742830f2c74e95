// Package store persists analysis run history. Records hold the request,
// outcome, tile provenance and summary statistics, never rasters.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sprawl-cli/internal/model"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	District string          `json:"district,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// CompleteRun stores result and marks the run complete with outcome done.
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	// FailRun marks the run failed with a terminal outcome and message.
	FailRun(ctx context.Context, runID string, outcome model.Outcome, msg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	// DeleteRunsBefore removes runs created before t and returns how many.
	DeleteRunsBefore(ctx context.Context, t time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func notFound(runID string) error {
	return eris.Wrapf(ErrNotFound, "run %s", runID)
}
