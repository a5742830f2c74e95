package boundary

import (
	"archive/zip"
	"context"
	"io"
	"math"
	"os"
	"path"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/sprawl-cli/internal/crs"
)

// ShapefileProvider reads districts from an ESRI shapefile, or from a ZIP
// archive holding exactly one. The CRS comes from the sidecar .prj file and
// defaults to WGS84 when it is missing.
type ShapefileProvider struct {
	path      string
	nameField string
}

// NewShapefileProvider returns a provider matching nameField (DefaultNameField
// when empty).
func NewShapefileProvider(path, nameField string) *ShapefileProvider {
	if nameField == "" {
		nameField = DefaultNameField
	}
	return &ShapefileProvider{path: path, nameField: nameField}
}

// records iterates shapefile rows from a plain file or a ZIP archive.
type records interface {
	Next() bool
	Fields() []shp.Field
	Err() error
	Close() error
	current(field int) (row int, shape shp.Shape, value string)
}

type fileRecords struct{ *shp.Reader }

func (r fileRecords) current(field int) (int, shp.Shape, string) {
	row, shape := r.Shape()
	return row, shape, r.ReadAttribute(row, field)
}

type zipRecords struct{ *shp.ZipReader }

func (r zipRecords) current(field int) (int, shp.Shape, string) {
	row, shape := r.Shape()
	return row, shape, r.Attribute(field)
}

func (p *ShapefileProvider) zipped() bool {
	return strings.EqualFold(path.Ext(p.path), ".zip")
}

func (p *ShapefileProvider) open() (records, error) {
	if p.zipped() {
		ok, err := hasZippedMember(p.path, ".dbf")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, eris.Errorf("archive %s has no .dbf attribute table", p.path)
		}
		zr, err := shp.OpenZip(p.path)
		if err != nil {
			return nil, err
		}
		return zipRecords{zr}, nil
	}
	r, err := shp.Open(p.path)
	if err != nil {
		return nil, err
	}
	return fileRecords{r}, nil
}

// Lookup scans the shapefile for records whose name attribute matches name.
func (p *ShapefileProvider) Lookup(ctx context.Context, name string) (*District, error) {
	reader, err := p.open()
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", p.path)
	}
	defer func() { _ = reader.Close() }()

	field := -1
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), p.nameField) {
			field = i
			break
		}
	}
	if field < 0 {
		return nil, eris.Errorf("boundary: shapefile %s has no %q field", p.path, p.nameField)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var matched string
	var skipped int
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, shape, value := reader.current(field)
		value = strings.TrimSpace(strings.TrimRight(value, "\x00"))
		if !sameName(value, name) {
			continue
		}
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		if err := pushShapePolygon(mp, poly); err != nil {
			return nil, eris.Wrapf(err, "boundary: record %d", row)
		}
		matched = value
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", p.path)
	}
	if skipped > 0 {
		zap.L().Debug("boundary: skipped non-polygon records",
			zap.String("district", name),
			zap.Int("skipped", skipped),
		)
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "boundary: %q in %s", name, p.path)
	}

	source, err := p.crs()
	if err != nil {
		return nil, err
	}
	return &District{Name: matched, Polygons: mp, CRS: source}, nil
}

func (p *ShapefileProvider) crs() (crs.CRS, error) {
	var (
		data []byte
		err  error
	)
	if p.zipped() {
		data, err = readZippedPRJ(p.path)
	} else {
		data, err = os.ReadFile(strings.TrimSuffix(p.path, ".shp") + ".prj")
	}
	if os.IsNotExist(err) {
		return crs.WGS84, nil
	}
	if err != nil {
		return crs.CRS{}, eris.Wrapf(err, "boundary: read projection for %s", p.path)
	}
	c, err := crs.FromWKT(string(data))
	if err != nil {
		return crs.CRS{}, eris.Wrapf(err, "boundary: projection of %s", p.path)
	}
	return c, nil
}

// hasZippedMember reports whether the archive holds a file with extension ext.
func hasZippedMember(archive, ext string) (bool, error) {
	z, err := zip.OpenReader(archive)
	if err != nil {
		return false, err
	}
	defer func() { _ = z.Close() }()

	for _, f := range z.File {
		if strings.EqualFold(path.Ext(f.Name), ext) {
			return true, nil
		}
	}
	return false, nil
}

// readZippedPRJ returns the .prj next to the archive's shapefile, or an
// os.ErrNotExist error when there is none.
func readZippedPRJ(archive string) ([]byte, error) {
	z, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = z.Close() }()

	for _, f := range z.File {
		if !strings.EqualFold(path.Ext(f.Name), ".prj") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, os.ErrNotExist
}

// pushShapePolygon converts the rings of a shapefile polygon into polygons.
// Shapefile shells are clockwise and holes counter-clockwise. Files that wind
// every ring counter-clockwise are classified by nesting depth instead. Each
// hole is attached to the innermost shell containing it; a hole no shell
// contains becomes a shell of its own.
func pushShapePolygon(mp *geom.MultiPolygon, p *shp.Polygon) error {
	type part struct {
		flat []float64
		area float64
	}
	var parts []part
	clockwise := false
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		area := xy.SignedArea(geom.XY, flat)
		if area == 0 {
			continue
		}
		clockwise = clockwise || area > 0
		parts = append(parts, part{flat: flat, area: area})
	}

	contains := func(outer, inner part) bool {
		return xy.IsPointInRing(geom.XY, geom.Coord(inner.flat[:2]), outer.flat)
	}
	shell := make([]bool, len(parts))
	for i, pt := range parts {
		if clockwise {
			shell[i] = pt.area > 0
			continue
		}
		depth := 0
		for j, other := range parts {
			if i != j && contains(other, pt) {
				depth++
			}
		}
		shell[i] = depth%2 == 0
	}

	polys := make([]*geom.Polygon, len(parts))
	newPolygon := func(i int) error {
		polys[i] = geom.NewPolygon(geom.XY)
		return polys[i].Push(geom.NewLinearRingFlat(geom.XY, parts[i].flat))
	}
	for i := range parts {
		if shell[i] {
			if err := newPolygon(i); err != nil {
				return err
			}
		}
	}
	for i, h := range parts {
		if shell[i] {
			continue
		}
		owner := -1
		for j, s := range parts {
			if !shell[j] || !contains(s, h) {
				continue
			}
			if owner < 0 || math.Abs(s.area) < math.Abs(parts[owner].area) {
				owner = j
			}
		}
		if owner < 0 {
			if err := newPolygon(i); err != nil {
				return err
			}
			continue
		}
		if err := polys[owner].Push(geom.NewLinearRingFlat(geom.XY, h.flat)); err != nil {
			return err
		}
	}

	for _, poly := range polys {
		if poly == nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			return err
		}
	}
	return nil
}
