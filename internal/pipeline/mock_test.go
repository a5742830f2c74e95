package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/sprawl-cli/internal/boundary"
	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/internal/imagery"
	"github.com/sells-group/sprawl-cli/internal/raster"
)

var utm43 = crs.CRS{EPSG: 32643}

type fakeProvider struct {
	districts map[string]*boundary.District
}

func (f *fakeProvider) Lookup(_ context.Context, name string) (*boundary.District, error) {
	d, ok := f.districts[name]
	if !ok {
		return nil, boundary.ErrNotFound
	}
	return d, nil
}

type fakeCatalog struct {
	tiles []imagery.Tile
	err   error
	calls int
}

func (f *fakeCatalog) Search(ctx context.Context, _ imagery.SearchParams) ([]imagery.Tile, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.tiles, f.err
}

// fakeOpener serves bands keyed by tile ID and band name.
type fakeOpener struct {
	mu     sync.Mutex
	bands  map[string]*raster.Band
	errs   map[string]error
	delays map[string]time.Duration
	opened []string
}

func key(tileID, band string) string { return tileID + "/" + band }

func (f *fakeOpener) OpenBand(ctx context.Context, tile imagery.Tile, band string) (raster.Source, error) {
	k := key(tile.ID, band)
	f.mu.Lock()
	f.opened = append(f.opened, k)
	delay := f.delays[tile.ID]
	err := f.errs[k]
	if err == nil {
		err = f.errs[tile.ID]
	}
	b := f.bands[k]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("no such asset")
	}
	return b, nil
}

func constBand(w, h int, v, left, top float64, c crs.CRS) *raster.Band {
	b := raster.NewBand(w, h, raster.NorthUp(left, top, 10, 10), c)
	for i := range b.Data {
		b.Data[i] = v
	}
	return b
}

func square(minX, minY, maxX, maxY float64) *geom.MultiPolygon {
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}, []int{10})
	mp := geom.NewMultiPolygon(geom.XY)
	if err := mp.Push(poly); err != nil {
		panic(err)
	}
	return mp
}

var acquired = time.Date(2023, 2, 10, 5, 40, 0, 0, time.UTC)

func tile(id string, cloud float64) imagery.Tile {
	return imagery.Tile{
		ID:         id,
		Acquired:   acquired,
		CloudCover: cloud,
		CRS:        utm43,
		Assets:     map[string]string{"B04": id + "/B04", "B08": id + "/B08", "B11": id + "/B11"},
	}
}

// lahoreFixture returns a provider, catalog and opener where one 10x10 tile
// at 10 m covers a 4x4 pixel district.
func lahoreFixture() (*fakeProvider, *fakeCatalog, *fakeOpener) {
	provider := &fakeProvider{districts: map[string]*boundary.District{
		"Lahore": {
			Name:     "Lahore",
			Polygons: square(400020, 3500020, 400060, 3500060),
			CRS:      utm43,
		},
		"Faraway": {
			Name:     "Faraway",
			Polygons: square(500020, 3600020, 500060, 3600060),
			CRS:      utm43,
		},
	}}
	catalog := &fakeCatalog{tiles: []imagery.Tile{tile("T1", 1), tile("T2", 3)}}
	opener := &fakeOpener{
		bands: map[string]*raster.Band{
			key("T1", "B04"): constBand(10, 10, 0.3, 400000, 3500100, utm43),
			key("T1", "B08"): constBand(10, 10, 0.5, 400000, 3500100, utm43),
			key("T1", "B11"): constBand(10, 10, 0.7, 400000, 3500100, utm43),
		},
		errs: map[string]error{"T2": errors.New("asset host unavailable")},
	}
	return provider, catalog, opener
}
