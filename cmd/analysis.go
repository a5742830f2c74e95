package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sprawl-cli/internal/boundary"
	"github.com/sells-group/sprawl-cli/internal/config"
	"github.com/sells-group/sprawl-cli/internal/imagery"
	"github.com/sells-group/sprawl-cli/internal/index"
	"github.com/sells-group/sprawl-cli/internal/model"
	"github.com/sells-group/sprawl-cli/internal/pipeline"
	"github.com/sells-group/sprawl-cli/internal/resilience"
	"github.com/sells-group/sprawl-cli/internal/store"
	"github.com/sells-group/sprawl-cli/pkg/stac"
)

// errInvalidRequest marks requests rejected before any work starts.
var errInvalidRequest = eris.New("invalid request")

// analyzer runs one analysis. *pipeline.Analyzer satisfies it.
type analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// newCatalogClient builds the STAC client with rate limiting, retries and
// the optional circuit breaker and SAS signing.
func newCatalogClient(c config.CatalogConfig) stac.Client {
	opts := []stac.Option{
		stac.WithRateLimit(c.RatePerSec),
		stac.WithRetry(resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)),
		stac.WithMaxItems(c.MaxItems),
		stac.WithPageSize(c.PageSize),
	}
	if c.TimeoutSecs > 0 {
		opts = append(opts, stac.WithHTTPClient(&http.Client{Timeout: time.Duration(c.TimeoutSecs) * time.Second}))
	}
	if c.Circuit.FailureThreshold > 0 {
		cbCfg := resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)
		cbCfg.Name = "stac"
		opts = append(opts, stac.WithCircuitBreaker(resilience.NewCircuitBreaker(cbCfg)))
	}
	if c.Sign {
		opts = append(opts, stac.WithSigning(c.TokenURL))
	}
	return stac.NewClient(c.URL, opts...)
}

// pipelineOptions maps the fetch and index sections onto analyzer options.
func pipelineOptions(c *config.Config) pipeline.Options {
	return pipeline.Options{
		Bands: pipeline.Bands{
			Red:  c.Fetch.Bands.Red,
			NIR:  c.Fetch.Bands.NIR,
			SWIR: c.Fetch.Bands.SWIR,
		},
		Scale:       c.Fetch.Scale,
		TileWorkers: c.Fetch.TileWorkers,
		Thresholds: index.Thresholds{
			BuiltUp:    c.Index.BuiltUpThreshold,
			Vegetation: c.Index.VegetationThreshold,
		},
	}
}

// newAnalyzer wires the boundary provider, STAC catalog and asset opener
// into a pipeline.Analyzer. boundaryPath overrides the configured file.
func newAnalyzer(c *config.Config, boundaryPath string) (*pipeline.Analyzer, error) {
	path := c.Boundary.Path
	if boundaryPath != "" {
		path = boundaryPath
	}
	boundaries, err := boundary.Open(path, c.Boundary.Format, c.Boundary.NameField)
	if err != nil {
		return nil, err
	}

	client := newCatalogClient(c.Catalog)
	catalog := imagery.NewSTACCatalog(client, c.Catalog.Collection)
	opener := imagery.NewHTTPAssetOpener(client)

	zap.L().Debug("analyzer initialized",
		zap.String("boundary", path),
		zap.String("catalog", c.Catalog.URL),
		zap.String("collection", c.Catalog.Collection),
	)
	return pipeline.NewAnalyzer(boundaries, catalog, opener, pipelineOptions(c)), nil
}

// runner executes analysis requests and records them when a store is set.
type runner struct {
	analyzer analyzer
	store    store.Store // may be nil
	defaults config.AnalysisConfig
	timeout  time.Duration // overrides defaults.TimeoutSecs when > 0
}

// budget is the time allowed for one analysis; zero means no deadline.
func (r *runner) budget() time.Duration {
	if r.timeout > 0 {
		return r.timeout
	}
	return time.Duration(r.defaults.TimeoutSecs) * time.Second
}

// prepare validates req, fills defaults and creates the run record.
func (r *runner) prepare(ctx context.Context, req model.RunRequest) (*model.Run, pipeline.Request, error) {
	if req.District == "" {
		return nil, pipeline.Request{}, eris.Wrap(errInvalidRequest, "district is required")
	}
	if req.DateRange == "" {
		req.DateRange = r.defaults.DateRange
	}
	if req.MaxCloudCover == 0 {
		req.MaxCloudCover = r.defaults.MaxCloudCover
	}
	if req.MaxCloudCover < 0 || req.MaxCloudCover > 100 {
		return nil, pipeline.Request{}, eris.Wrapf(errInvalidRequest, "max cloud cover %g outside [0, 100]", req.MaxCloudCover)
	}
	if req.Scale < 0 || req.Scale > 1 {
		return nil, pipeline.Request{}, eris.Wrapf(errInvalidRequest, "scale %g outside (0, 1]", req.Scale)
	}
	dr, err := imagery.ParseDateRange(req.DateRange)
	if err != nil {
		return nil, pipeline.Request{}, eris.Wrapf(errInvalidRequest, "date range %q: %v", req.DateRange, err)
	}

	preq := pipeline.Request{
		District:      req.District,
		DateRange:     dr,
		MaxCloudCover: req.MaxCloudCover,
		Scale:         req.Scale,
	}

	if r.store == nil {
		now := time.Now().UTC()
		return &model.Run{Request: req, Status: model.RunStatusQueued, CreatedAt: now, UpdatedAt: now}, preq, nil
	}
	run, err := r.store.CreateRun(ctx, req)
	if err != nil {
		return nil, pipeline.Request{}, eris.Wrap(err, "record run")
	}
	return run, preq, nil
}

// execute runs the analysis for a prepared run and records the outcome. The
// returned error is the analysis error, if any.
func (r *runner) execute(ctx context.Context, run *model.Run, preq pipeline.Request) error {
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("district", preq.District))

	run.Status = model.RunStatusRunning
	if r.store != nil {
		if err := r.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
			log.Warn("update run status failed", zap.Error(err))
		}
	}

	if budget := r.budget(); budget > 0 {
		preq.Deadline = time.Now().Add(budget)
	}

	res, aerr := r.analyzer.Analyze(ctx, preq)
	run.UpdatedAt = time.Now().UTC()

	// Record even when ctx was cancelled.
	recordCtx := context.WithoutCancel(ctx)

	if aerr != nil {
		run.Status = model.RunStatusFailed
		run.Outcome = pipeline.Outcome(aerr)
		run.Error = aerr.Error()
		if r.store != nil {
			if err := r.store.FailRun(recordCtx, run.ID, run.Outcome, run.Error); err != nil {
				log.Warn("record failed run", zap.Error(err))
			}
		}
		return aerr
	}

	run.Status = model.RunStatusComplete
	run.Outcome = model.OutcomeDone
	run.Result = runResult(res)
	if r.store != nil {
		if err := r.store.CompleteRun(recordCtx, run.ID, run.Result); err != nil {
			log.Warn("record completed run", zap.Error(err))
		}
	}
	return nil
}

// run prepares and executes req synchronously.
func (r *runner) run(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	run, preq, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return run, r.execute(ctx, run, preq)
}

// runResult keeps the parts of a pipeline result worth storing.
func runResult(res *pipeline.Result) *model.RunResult {
	return &model.RunResult{
		District: res.District,
		TileIDs:  res.TileIDs(),
		Grid:     res.Profile,
		Summary:  res.Summary,
		Phases:   res.Phases,
	}
}
