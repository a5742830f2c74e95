package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Merge composites bands into one raster covering their union extent.
//
// The output pixel size is taken from the first band. Where inputs overlap,
// the earliest band in the slice with a non-NaN value wins. Inputs are
// assumed to share a CRS; the caller is responsible for that.
func Merge(bands []*Band) (*Band, error) {
	if len(bands) == 0 {
		return nil, eris.New("raster: merge of zero bands")
	}
	first := bands[0]
	resX, resY := first.Transform.PixelSize()
	if resX == 0 || resY == 0 {
		return nil, eris.New("raster: merge input has zero pixel size")
	}

	extent := EmptyBounds()
	for _, b := range bands {
		extent = extent.Union(b.Profile().Bounds())
	}

	width := int(math.Round((extent.MaxX - extent.MinX) / resX))
	height := int(math.Round((extent.MaxY - extent.MinY) / resY))
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("raster: merge extent yields %dx%d grid", width, height)
	}

	out := NewBand(width, height, NorthUp(extent.MinX, extent.MaxY, resX, resY), first.CRS)
	outInv, err := out.Transform.Inverse()
	if err != nil {
		return nil, eris.Wrap(err, "raster: merge")
	}

	for i, b := range bands {
		inv, err := b.Transform.Inverse()
		if err != nil {
			return nil, eris.Wrapf(err, "raster: merge input %d", i)
		}
		c0, r0, c1, r1 := windowOf(b.Profile().Bounds(), outInv, width, height)
		for r := r0; r < r1; r++ {
			for c := c0; c < c1; c++ {
				idx := r*width + c
				if !math.IsNaN(out.Data[idx]) {
					continue
				}
				x, y := out.Transform.Apply(float64(c)+0.5, float64(r)+0.5)
				fc, fr := inv.Apply(x, y)
				sc, sr := int(math.Floor(fc)), int(math.Floor(fr))
				if sc < 0 || sr < 0 || sc >= b.Width || sr >= b.Height {
					continue
				}
				out.Data[idx] = b.Data[sr*b.Width+sc]
			}
		}
	}
	return out, nil
}

// windowOf returns the pixel window [c0,c1)×[r0,r1) of grid inv that covers
// world bounds wb, clamped to width×height.
func windowOf(wb Bounds, inv Affine, width, height int) (c0, r0, c1, r1 int) {
	px := EmptyBounds()
	for _, p := range [][2]float64{{wb.MinX, wb.MinY}, {wb.MinX, wb.MaxY}, {wb.MaxX, wb.MinY}, {wb.MaxX, wb.MaxY}} {
		px = px.Extend(inv.Apply(p[0], p[1]))
	}
	c0 = clampI(int(math.Floor(px.MinX+windowEps)), 0, width)
	r0 = clampI(int(math.Floor(px.MinY+windowEps)), 0, height)
	c1 = clampI(int(math.Ceil(px.MaxX-windowEps)), 0, width)
	r1 = clampI(int(math.Ceil(px.MaxY-windowEps)), 0, height)
	return c0, r0, c1, r1
}

// windowEps absorbs floating point noise when a bound falls exactly on a
// pixel edge.
const windowEps = 1e-9

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
