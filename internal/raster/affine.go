package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Affine maps pixel (col, row) to world (x, y):
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// Coefficients follow the GDAL/rasterio a..f ordering.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{A: 1, E: 1}
}

// NorthUp returns a rectilinear transform with square-ish pixels of the given
// size whose top-left corner is at (left, top).
func NorthUp(left, top, resX, resY float64) Affine {
	return Affine{A: resX, C: left, E: -resY, F: top}
}

// Apply maps pixel coordinates to world coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Multiply returns t∘o, the transform that applies o first and then t.
func (t Affine) Multiply(o Affine) Affine {
	return Affine{
		A: t.A*o.A + t.B*o.D,
		B: t.A*o.B + t.B*o.E,
		C: t.A*o.C + t.B*o.F + t.C,
		D: t.D*o.A + t.E*o.D,
		E: t.D*o.B + t.E*o.E,
		F: t.D*o.C + t.E*o.F + t.F,
	}
}

// Scale returns t with pixels stretched by sx columns and sy rows. Used when a
// grid is resampled to fewer or more pixels over the same extent.
func (t Affine) Scale(sx, sy float64) Affine {
	return t.Multiply(Affine{A: sx, E: sy})
}

// Translate returns t with its origin moved to pixel (col, row).
func (t Affine) Translate(col, row float64) Affine {
	return t.Multiply(Affine{A: 1, C: col, E: 1, F: row})
}

// Inverse returns the world-to-pixel transform.
func (t Affine) Inverse() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if det == 0 || math.IsNaN(det) {
		return Affine{}, eris.New("raster: affine transform is not invertible")
	}
	ia := t.E / det
	ib := -t.B / det
	id := -t.D / det
	ie := t.A / det
	return Affine{
		A: ia, B: ib, C: -(ia*t.C + ib*t.F),
		D: id, E: ie, F: -(id*t.C + ie*t.F),
	}, nil
}

// PixelSize returns the absolute pixel width and height in world units.
func (t Affine) PixelSize() (float64, float64) {
	return math.Hypot(t.A, t.D), math.Hypot(t.B, t.E)
}

// Rectilinear reports whether the transform has no rotation or shear.
func (t Affine) Rectilinear() bool {
	return t.B == 0 && t.D == 0
}

// AlmostEqual compares two transforms coefficient-wise within tol.
func (t Affine) AlmostEqual(o Affine, tol float64) bool {
	return math.Abs(t.A-o.A) <= tol && math.Abs(t.B-o.B) <= tol && math.Abs(t.C-o.C) <= tol &&
		math.Abs(t.D-o.D) <= tol && math.Abs(t.E-o.E) <= tol && math.Abs(t.F-o.F) <= tol
}
