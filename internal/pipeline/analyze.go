package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sprawl-cli/internal/boundary"
	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/internal/imagery"
	"github.com/sells-group/sprawl-cli/internal/index"
	"github.com/sells-group/sprawl-cli/internal/model"
	"github.com/sells-group/sprawl-cli/internal/raster"
)

// Analysis states, in order.
const (
	StateBoundaryLookup = "boundary_lookup"
	StateCatalogSearch  = "catalog_search"
	StateTileSelection  = "tile_selection"
	StateBandFetch      = "band_fetch"
	StateShapeFix       = "shape_fix"
	StateClip           = "clip"
	StateRealign        = "realign"
	StateIndex          = "index"
)

// Bands names the catalog assets used for each spectral band.
type Bands struct {
	Red  string
	NIR  string
	SWIR string
}

// DefaultBands returns the Sentinel-2 asset keys.
func DefaultBands() Bands {
	return Bands{Red: "B04", NIR: "B08", SWIR: "B11"}
}

// Options tune an Analyzer.
type Options struct {
	Bands       Bands
	Scale       float64
	TileWorkers int
	Thresholds  index.Thresholds
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Bands:       DefaultBands(),
		Scale:       0.2,
		TileWorkers: DefaultTileWorkers,
		Thresholds:  index.DefaultThresholds(),
	}
}

// Request asks for one district over one acquisition window.
type Request struct {
	District      string
	DateRange     imagery.DateRange
	MaxCloudCover float64
	// Scale overrides Options.Scale when positive.
	Scale float64
	// Deadline bounds the whole analysis. Zero means none.
	Deadline time.Time
}

// Result is a completed analysis.
type Result struct {
	District string
	Index    index.Result
	Summary  index.Summary
	// Profile is the grid of the clipped red mosaic, shared by every output.
	Profile raster.Profile
	Tiles   []imagery.Tile
	Phases  []model.PhaseResult
}

// TileIDs returns the provenance tile IDs in priority order.
func (r *Result) TileIDs() []string {
	return imagery.Mosaic{Tiles: r.Tiles}.TileIDs()
}

// Analyzer runs the sprawl analysis: boundary lookup, catalog search, tile
// selection, band fetch, alignment, clipping and index computation.
type Analyzer struct {
	boundaries boundary.Provider
	catalog    imagery.Catalog
	fetcher    *Fetcher
	opts       Options
}

// NewAnalyzer creates an Analyzer. Zero-valued options fall back to
// DefaultOptions.
func NewAnalyzer(boundaries boundary.Provider, catalog imagery.Catalog, opener imagery.AssetOpener, opts Options) *Analyzer {
	d := DefaultOptions()
	if opts.Bands.Red == "" {
		opts.Bands.Red = d.Bands.Red
	}
	if opts.Bands.NIR == "" {
		opts.Bands.NIR = d.Bands.NIR
	}
	if opts.Bands.SWIR == "" {
		opts.Bands.SWIR = d.Bands.SWIR
	}
	if opts.Scale == 0 {
		opts.Scale = d.Scale
	}
	if opts.TileWorkers <= 0 {
		opts.TileWorkers = d.TileWorkers
	}
	if opts.Thresholds == (index.Thresholds{}) {
		opts.Thresholds = d.Thresholds
	}
	return &Analyzer{
		boundaries: boundaries,
		catalog:    catalog,
		fetcher:    &Fetcher{Opener: opener, Workers: opts.TileWorkers},
		opts:       opts,
	}
}

type bandSet struct {
	red, nir, swir *raster.Band
}

// Analyze runs one request to completion. Errors match exactly one of
// ErrDistrictNotFound, ErrNoImagery, ErrNoValidTiles, ErrCancelled or
// ErrExternalService, or none of them for configuration and file errors.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}
	scale := a.opts.Scale
	if req.Scale > 0 {
		scale = req.Scale
	}
	if !(scale > 0 && scale <= 1) {
		return nil, eris.Wrapf(ErrInvalidScale, "pipeline: got %g", scale)
	}

	log := zap.L().With(zap.String("component", "pipeline"), zap.String("district", req.District))
	log.Info("pipeline: starting analysis",
		zap.Stringer("date_range", req.DateRange),
		zap.Float64("scale", scale),
	)

	res := &Result{}
	track := func(state string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, err := fn()
		if err != nil && cancelled(ctx, err) {
			err = eris.Wrapf(ErrCancelled, "pipeline: during %s: %v", state, err)
		}
		phase := model.PhaseResult{
			Name:     state,
			Status:   model.PhaseStatusComplete,
			Duration: time.Since(start).Milliseconds(),
			Metadata: meta,
		}
		if err != nil {
			phase.Status = model.PhaseStatusFailed
			phase.Error = err.Error()
			log.Warn("pipeline: state failed",
				zap.String("state", state),
				zap.Int64("duration_ms", phase.Duration),
				zap.Error(err),
			)
		} else {
			log.Info("pipeline: state complete",
				zap.String("state", state),
				zap.Int64("duration_ms", phase.Duration),
			)
		}
		res.Phases = append(res.Phases, phase)
		return err
	}

	var district *boundary.District
	err := track(StateBoundaryLookup, func() (map[string]any, error) {
		d, err := a.boundaries.Lookup(ctx, req.District)
		if errors.Is(err, boundary.ErrNotFound) {
			return nil, eris.Wrapf(ErrDistrictNotFound, "pipeline: %q", req.District)
		}
		if err != nil {
			return nil, err
		}
		district = d
		return map[string]any{"polygons": d.Polygons.NumPolygons(), "crs": d.CRS.String()}, nil
	})
	if err != nil {
		return nil, err
	}
	res.District = district.Name

	var candidates []imagery.Tile
	err = track(StateCatalogSearch, func() (map[string]any, error) {
		bbox, err := district.LonLatBBox()
		if err != nil {
			return nil, err
		}
		maxCloud := req.MaxCloudCover
		if maxCloud <= 0 {
			maxCloud = imagery.DefaultMaxCloudCover
		}
		tiles, err := a.catalog.Search(ctx, imagery.SearchParams{
			BBox:          bbox,
			DateRange:     req.DateRange,
			MaxCloudCover: maxCloud,
		})
		if err != nil {
			if cancelled(ctx, err) {
				return nil, err
			}
			return nil, eris.Wrapf(ErrExternalService, "pipeline: catalog search: %v", err)
		}
		if len(tiles) == 0 {
			return nil, eris.Wrapf(ErrNoImagery, "pipeline: %q %s", req.District, req.DateRange)
		}
		candidates = tiles
		return map[string]any{"tiles": len(tiles)}, nil
	})
	if err != nil {
		return nil, err
	}

	var selected []imagery.Tile
	_ = track(StateTileSelection, func() (map[string]any, error) {
		selected = imagery.SelectOverpass(candidates)
		return map[string]any{"candidates": len(candidates), "selected": len(selected)}, nil
	})

	var mosaics [3]*imagery.Mosaic
	err = track(StateBandFetch, func() (map[string]any, error) {
		g, gctx := errgroup.WithContext(ctx)
		for i, band := range []string{a.opts.Bands.Red, a.opts.Bands.NIR, a.opts.Bands.SWIR} {
			g.Go(func() error {
				m, err := a.fetcher.Fetch(gctx, selected, band, scale)
				if err != nil {
					return err
				}
				mosaics[i] = m
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return map[string]any{"red_tiles": len(mosaics[0].Tiles), "nir_tiles": len(mosaics[1].Tiles), "swir_tiles": len(mosaics[2].Tiles)}, nil
	})
	if err != nil {
		return nil, err
	}
	res.Tiles = mosaics[0].Tiles

	bands := bandSet{red: mosaics[0].Band, nir: mosaics[1].Band, swir: mosaics[2].Band}
	_ = track(StateShapeFix, func() (map[string]any, error) {
		shape := bands.red.Shape()
		bands.nir = raster.Reconcile(bands.nir, shape, "nir")
		bands.swir = raster.Reconcile(bands.swir, shape, "swir")
		return nil, nil
	})

	err = track(StateClip, func() (map[string]any, error) {
		var err error
		if bands.red, err = clipBand(district, bands.red); err != nil {
			return nil, err
		}
		if bands.nir, err = clipBand(district, bands.nir); err != nil {
			return nil, err
		}
		if bands.swir, err = clipBand(district, bands.swir); err != nil {
			return nil, err
		}
		return map[string]any{"width": bands.red.Width, "height": bands.red.Height}, nil
	})
	if err != nil {
		return nil, err
	}

	_ = track(StateRealign, func() (map[string]any, error) {
		ref := bands.red.Profile()
		bands.nir = raster.AlignTo(bands.nir, ref, "nir")
		bands.swir = raster.AlignTo(bands.swir, ref, "swir")
		return nil, nil
	})

	err = track(StateIndex, func() (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Index = a.opts.Thresholds.Compute(bands.red, bands.nir, bands.swir)
		res.Summary = index.Summarize(res.Index)
		res.Profile = res.Index.Profile
		return map[string]any{"valid_pixels": res.Summary.ValidPixels, "sprawl_pixels": res.Summary.SprawlPixels}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("pipeline: analysis complete",
		zap.Int("tiles", len(res.Tiles)),
		zap.Int("valid_pixels", res.Summary.ValidPixels),
		zap.Float64("sprawl_fraction", res.Summary.SprawlFraction),
	)
	return res, nil
}

// clipBand reprojects the district into the band's CRS and clips with crop.
// A district outside the mosaic means the imagery does not cover it.
func clipBand(d *boundary.District, b *raster.Band) (*raster.Band, error) {
	polys, err := crs.TransformMultiPolygon(d.Polygons, d.CRS, b.CRS)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reproject district")
	}
	out, err := raster.Clip(b, polys, true)
	if errors.Is(err, raster.ErrNoOverlap) {
		return nil, eris.Wrapf(ErrNoImagery, "pipeline: mosaic does not overlap %q", d.Name)
	}
	return out, err
}
