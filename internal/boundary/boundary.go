// Package boundary loads named district boundaries from vector files.
package boundary

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/cases"

	"github.com/sells-group/sprawl-cli/internal/crs"
)

// DefaultNameField is the attribute holding the district name.
const DefaultNameField = "d_name"

// ErrNotFound is returned by Lookup when no feature carries the name.
var ErrNotFound = eris.New("boundary: district not found")

// District is a named area of interest. All features sharing the name are
// merged into Polygons.
type District struct {
	Name     string
	Polygons *geom.MultiPolygon
	CRS      crs.CRS
}

// Bounds returns the district extent in its own CRS.
func (d *District) Bounds() *geom.Bounds {
	return d.Polygons.Bounds()
}

// LonLatBBox returns the extent in WGS84 as min lon, min lat, max lon, max lat.
func (d *District) LonLatBBox() ([4]float64, error) {
	mp, err := crs.TransformMultiPolygon(d.Polygons, d.CRS, crs.WGS84)
	if err != nil {
		return [4]float64{}, eris.Wrap(err, "boundary: reproject to WGS84")
	}
	b := mp.Bounds()
	return [4]float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}, nil
}

// Provider resolves district names to geometries.
type Provider interface {
	Lookup(ctx context.Context, name string) (*District, error)
}

// Open returns a Provider for path. format is "shapefile", "geojson" or
// empty to pick by file extension.
func Open(path, format, nameField string) (Provider, error) {
	if path == "" {
		return nil, eris.New("boundary: no boundary file configured")
	}
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".shp", ".zip":
			format = "shapefile"
		case ".geojson", ".json":
			format = "geojson"
		}
	}
	switch format {
	case "shapefile", "shp":
		return NewShapefileProvider(path, nameField), nil
	case "geojson":
		return NewGeoJSONProvider(path, nameField), nil
	default:
		return nil, eris.Errorf("boundary: unsupported boundary format %q for %s", format, path)
	}
}

// sameName compares names under Unicode case folding, ignoring surrounding
// whitespace. A Caser is stateful, so each call gets its own.
func sameName(a, b string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(a)) == fold.String(strings.TrimSpace(b))
}

// appendPolygons moves every polygon of src into dst.
func appendPolygons(dst *geom.MultiPolygon, src geom.T) error {
	switch g := src.(type) {
	case *geom.Polygon:
		return dst.Push(g)
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			if err := dst.Push(g.Polygon(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return eris.Errorf("boundary: unsupported geometry %T", src)
	}
}
