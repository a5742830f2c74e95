package raster

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrNoOverlap is returned when a crop window around the clip geometry does not
// intersect the raster.
var ErrNoOverlap = eris.New("raster: geometry does not overlap raster")

// Clip sets every pixel whose centre lies outside polys to NaN. With crop it
// also shrinks the result to the pixel window bounding polys and translates
// the transform to that window's top-left corner. polys must already be in
// the band's CRS.
//
// Clip is idempotent: clipping its own output with the same geometry yields
// an identical band.
func Clip(b *Band, polys *geom.MultiPolygon, crop bool) (*Band, error) {
	if polys == nil || polys.NumPolygons() == 0 {
		return nil, eris.New("raster: clip with empty geometry")
	}
	inv, err := b.Transform.Inverse()
	if err != nil {
		return nil, eris.Wrap(err, "raster: clip")
	}

	c0, r0, c1, r1 := 0, 0, b.Width, b.Height
	if crop {
		gb := polys.Bounds()
		c0, r0, c1, r1 = windowOf(Bounds{
			MinX: gb.Min(0), MinY: gb.Min(1),
			MaxX: gb.Max(0), MaxY: gb.Max(1),
		}, inv, b.Width, b.Height)
		if c0 >= c1 || r0 >= r1 {
			return nil, ErrNoOverlap
		}
	}

	inside := Rasterize(b.Profile(), polys)
	w, h := c1-c0, r1-r0
	data := make([]float64, w*h)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			si := (r+r0)*b.Width + c + c0
			if inside[si] {
				data[r*w+c] = b.Data[si]
			} else {
				data[r*w+c] = math.NaN()
			}
		}
	}

	return &Band{
		Data:      data,
		Width:     w,
		Height:    h,
		Transform: b.Transform.Translate(float64(c0), float64(r0)),
		CRS:       b.CRS,
	}, nil
}

// Rasterize burns polys into a row-major inside/outside mask for grid p. A
// pixel is inside when its centre is inside an odd number of rings, which
// treats polygon holes as outside.
func Rasterize(p Profile, polys *geom.MultiPolygon) []bool {
	mask := make([]bool, p.Width*p.Height)
	inv, err := p.Transform.Inverse()
	if err != nil || polys == nil {
		return mask
	}

	// Rings in pixel space; affine maps keep straight edges straight, so the
	// scanline can run on integer rows regardless of rotation.
	var rings [][]float64
	for i := 0; i < polys.NumPolygons(); i++ {
		poly := polys.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			flat := poly.LinearRing(j).FlatCoords()
			stride := poly.Stride()
			px := make([]float64, 0, len(flat)/stride*2)
			for k := 0; k+1 < len(flat); k += stride {
				c, r := inv.Apply(flat[k], flat[k+1])
				px = append(px, c, r)
			}
			rings = append(rings, px)
		}
	}

	var xs []float64
	for row := 0; row < p.Height; row++ {
		y := float64(row) + 0.5
		xs = xs[:0]
		for _, ring := range rings {
			n := len(ring) / 2
			for k := 0; k < n; k++ {
				x1, y1 := ring[2*k], ring[2*k+1]
				x2, y2 := ring[2*((k+1)%n)], ring[2*((k+1)%n)+1]
				if (y1 <= y) == (y2 <= y) {
					continue
				}
				xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
			}
		}
		if len(xs) < 2 {
			continue
		}
		slices.Sort(xs)
		for k := 0; k+1 < len(xs); k += 2 {
			start := clampI(int(math.Ceil(xs[k]-0.5)), 0, p.Width)
			end := clampI(int(math.Ceil(xs[k+1]-0.5)), 0, p.Width)
			for c := start; c < end; c++ {
				mask[row*p.Width+c] = true
			}
		}
	}
	return mask
}
