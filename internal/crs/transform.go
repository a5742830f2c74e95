package crs

import (
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Transformer converts points from one CRS to another. It is safe for
// concurrent use.
type Transformer struct {
	from CRS
	to   CRS

	mu sync.Mutex
	fn proj.Transformer // nil when the CRSs are equivalent
}

// NewTransformer returns a Transformer between two supported CRSs.
func NewTransformer(from, to CRS) (*Transformer, error) {
	src, err := from.spatialRef()
	if err != nil {
		return nil, eris.Wrapf(err, "crs: source %s", from)
	}
	dst, err := to.spatialRef()
	if err != nil {
		return nil, eris.Wrapf(err, "crs: target %s", to)
	}
	t := &Transformer{from: from, to: to}
	if from == to {
		return t, nil
	}
	t.fn, err = src.NewTransform(dst)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: %s to %s", from, to)
	}
	return t, nil
}

// Identity reports whether the transform is a no-op.
func (t *Transformer) Identity() bool { return t.fn == nil }

// Transform converts (x, y) from the source CRS to the target CRS. Geographic
// coordinates are (longitude, latitude) in degrees.
func (t *Transformer) Transform(x, y float64) (float64, float64, error) {
	if t.fn == nil {
		return x, y, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fn(x, y)
}

// TransformMultiPolygon returns a reprojected copy of mp. The input is not
// modified.
func TransformMultiPolygon(mp *geom.MultiPolygon, from, to CRS) (*geom.MultiPolygon, error) {
	if mp == nil {
		return nil, eris.New("crs: nil multipolygon")
	}
	tr, err := NewTransformer(from, to)
	if err != nil {
		return nil, err
	}
	out := mp.Clone()
	flat := out.FlatCoords()
	stride := out.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1], err = tr.Transform(flat[i], flat[i+1])
		if err != nil {
			return nil, eris.Wrapf(err, "crs: transform (%g, %g) to %s", mp.FlatCoords()[i], mp.FlatCoords()[i+1], to)
		}
	}
	return out, nil
}
