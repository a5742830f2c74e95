package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/internal/imagery"
	"github.com/sells-group/sprawl-cli/internal/raster"
)

// DefaultTileWorkers bounds concurrent tile fetches per band.
const DefaultTileWorkers = 4

// Fetcher turns the selected tiles into one downsampled mosaic per band.
type Fetcher struct {
	Opener  imagery.AssetOpener
	Workers int
}

// FetchBand fetches band from tiles with DefaultTileWorkers.
func FetchBand(ctx context.Context, opener imagery.AssetOpener, tiles []imagery.Tile, band string, scale float64) (*imagery.Mosaic, error) {
	f := &Fetcher{Opener: opener, Workers: DefaultTileWorkers}
	return f.Fetch(ctx, tiles, band, scale)
}

// Fetch opens band for every tile, reprojects tiles to the CRS of the first
// tile that opened (in input order), resamples each by scale and merges them
// with first-tile priority. Tiles that fail are logged and skipped; if all
// fail the error matches ErrNoValidTiles.
func (f *Fetcher) Fetch(ctx context.Context, tiles []imagery.Tile, band string, scale float64) (*imagery.Mosaic, error) {
	if !(scale > 0 && scale <= 1) {
		return nil, eris.Wrapf(ErrInvalidScale, "pipeline: got %g", scale)
	}
	log := zap.L().With(zap.String("component", "fetch"), zap.String("band", band))

	workers := f.Workers
	if workers <= 0 {
		workers = DefaultTileWorkers
	}

	// Open every tile first so the reference CRS does not depend on which
	// goroutine finishes first.
	sources := make([]raster.Source, len(tiles))
	errs := make([]error, len(tiles))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, t := range tiles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			sources[i], errs[i] = f.Opener.OpenBand(ctx, t, band)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch %s", band)
	}

	var ref crs.CRS
	for i, src := range sources {
		if errs[i] == nil && src != nil {
			ref = src.Profile().CRS
			break
		}
	}

	bands := make([]*raster.Band, len(tiles))
	var rg errgroup.Group
	rg.SetLimit(workers)
	for i, src := range sources {
		if errs[i] != nil || src == nil {
			continue
		}
		rg.Go(func() error {
			bands[i], errs[i] = prepareTile(src, ref, scale)
			sources[i] = nil
			return nil
		})
	}
	_ = rg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch %s", band)
	}

	var ok []*raster.Band
	var used []imagery.Tile
	for i, t := range tiles {
		if errs[i] != nil || bands[i] == nil {
			log.Warn("pipeline: skipping tile",
				zap.String("tile", t.ID),
				zap.Error(errs[i]),
			)
			continue
		}
		ok = append(ok, bands[i])
		used = append(used, t)
	}
	if len(ok) == 0 {
		return nil, eris.Wrapf(ErrNoValidTiles, "pipeline: band %s, %d tiles tried", band, len(tiles))
	}

	merged, err := raster.Merge(ok)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: merge %s", band)
	}
	log.Debug("pipeline: band mosaic ready",
		zap.Int("tiles", len(used)),
		zap.Int("width", merged.Width),
		zap.Int("height", merged.Height),
		zap.Stringer("crs", merged.CRS),
	)
	return &imagery.Mosaic{Band: merged, Tiles: used}, nil
}

// prepareTile warps src to ref when needed and resamples it by scale.
func prepareTile(src raster.Source, ref crs.CRS, scale float64) (*raster.Band, error) {
	if src.Profile().CRS != ref {
		w, err := raster.Warp(src, ref)
		if err != nil {
			return nil, err
		}
		src = w
	}
	return raster.ResampleBilinear(src, scale)
}
