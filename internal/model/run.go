// Package model holds the records persisted for each analysis run.
package model

import (
	"time"

	"github.com/sells-group/sprawl-cli/internal/index"
	"github.com/sells-group/sprawl-cli/internal/raster"
)

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Outcome is the terminal result of an analysis.
type Outcome string

const (
	OutcomeDone             Outcome = "done"
	OutcomeDistrictNotFound Outcome = "district_not_found"
	OutcomeNoImagery        Outcome = "no_imagery"
	OutcomeNoValidTiles     Outcome = "no_valid_tiles"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeError            Outcome = "error"
)

// RunRequest records what was asked for.
type RunRequest struct {
	District      string  `json:"district" yaml:"district"`
	DateRange     string  `json:"date_range" yaml:"date_range"`
	MaxCloudCover float64 `json:"max_cloud_cover" yaml:"max_cloud_cover"`
	Scale         float64 `json:"scale" yaml:"scale"`
}

// Run represents a single analysis of one district.
type Run struct {
	ID        string     `json:"id" yaml:"id"`
	Request   RunRequest `json:"request" yaml:"request"`
	Status    RunStatus  `json:"status" yaml:"status"`
	Outcome   Outcome    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Result    *RunResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

// RunResult holds the outcome of a successful run. Rasters are not kept.
type RunResult struct {
	District string         `json:"district" yaml:"district"`
	TileIDs  []string       `json:"tile_ids" yaml:"tile_ids"`
	Grid     raster.Profile `json:"grid" yaml:"-"`
	Summary  index.Summary  `json:"summary" yaml:"summary"`
	Phases   []PhaseResult  `json:"phases" yaml:"phases"`
}

// PhaseStatus represents the state of one pipeline stage.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// PhaseResult holds the outcome of one pipeline stage.
type PhaseResult struct {
	Name     string         `json:"name" yaml:"name"`
	Status   PhaseStatus    `json:"status" yaml:"status"`
	Duration int64          `json:"duration_ms" yaml:"duration_ms"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status == RunStatusComplete || r.Status == RunStatusFailed
}
