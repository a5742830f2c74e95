//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/sprawl-cli/internal/config"
	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/internal/imagery"
	"github.com/sells-group/sprawl-cli/internal/index"
	"github.com/sells-group/sprawl-cli/internal/model"
	"github.com/sells-group/sprawl-cli/internal/pipeline"
	"github.com/sells-group/sprawl-cli/internal/raster"
	"github.com/sells-group/sprawl-cli/internal/store"
)

// fakeAnalyzer returns a canned result or error and records requests.
type fakeAnalyzer struct {
	mu     sync.Mutex
	result *pipeline.Result
	err    error
	reqs   []pipeline.Request
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAnalyzer) requests() []pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Request(nil), f.reqs...)
}

func lahoreResult() *pipeline.Result {
	return &pipeline.Result{
		District: "Lahore",
		Summary: index.Summary{
			TotalPixels:    16,
			ValidPixels:    8,
			SprawlPixels:   2,
			SprawlFraction: 0.25,
			PixelAreaM2:    2500,
			SprawlAreaKm2:  0.005,
		},
		Profile: raster.Profile{
			CRS:       crs.CRS{EPSG: 32643},
			Transform: raster.NorthUp(400000, 3500100, 50, 50),
			Width:     4,
			Height:    4,
		},
		Tiles: []imagery.Tile{
			{ID: "S2B_MSIL2A_20230214_T43RDQ", Acquired: time.Date(2023, 2, 14, 5, 50, 0, 0, time.UTC), CloudCover: 1.5},
			{ID: "S2B_MSIL2A_20230214_T43RCQ", Acquired: time.Date(2023, 2, 14, 5, 50, 5, 0, time.UTC), CloudCover: 3.2},
		},
		Phases: []model.PhaseResult{
			{Name: pipeline.StateBoundaryLookup, Status: model.PhaseStatusComplete, Duration: 2},
		},
	}
}

func defaultAnalysis() config.AnalysisConfig {
	return config.AnalysisConfig{DateRange: "2023-01-01/2023-05-30", MaxCloudCover: 10}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}
