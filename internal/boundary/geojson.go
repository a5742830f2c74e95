package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/sprawl-cli/internal/crs"
)

// GeoJSONProvider reads districts from a GeoJSON FeatureCollection in WGS84.
type GeoJSONProvider struct {
	path      string
	nameField string
}

// NewGeoJSONProvider returns a provider matching the nameField property
// (DefaultNameField when empty).
func NewGeoJSONProvider(path, nameField string) *GeoJSONProvider {
	if nameField == "" {
		nameField = DefaultNameField
	}
	return &GeoJSONProvider{path: path, nameField: nameField}
}

// Lookup returns the union of all Polygon and MultiPolygon features whose
// name property matches name.
func (p *GeoJSONProvider) Lookup(ctx context.Context, name string) (*District, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read %s", p.path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "boundary: parse %s", p.path)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var matched string
	for _, f := range fc.Features {
		raw, ok := f.Properties[p.nameField]
		if !ok || raw == nil {
			continue
		}
		value := fmt.Sprint(raw)
		if !sameName(value, name) {
			continue
		}
		if err := appendPolygons(mp, f.Geometry); err != nil {
			return nil, eris.Wrapf(err, "boundary: feature %q", value)
		}
		matched = value
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "boundary: %q in %s", name, p.path)
	}
	return &District{Name: matched, Polygons: mp, CRS: crs.WGS84}, nil
}
