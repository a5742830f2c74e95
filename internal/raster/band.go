// Package raster holds the single-band float rasters that flow through the
// sprawl pipeline and the grid operations applied to them: bilinear
// resampling, reprojection, mosaicking, nearest-neighbour shape fixing and
// polygon clipping.
//
// NaN is the only nodata encoding. Every operation returns a new Band; a Band
// is never modified after it has been returned, so pixel slices may be shared
// between bands.
package raster

import (
	"math"

	"github.com/sells-group/sprawl-cli/internal/crs"
)

// Shape is a raster size in rows and columns.
type Shape struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Profile describes a raster grid: CRS, pixel→world transform and
// dimensions. Profiles are comparable with ==.
type Profile struct {
	CRS       crs.CRS `json:"crs"`
	Transform Affine  `json:"transform"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// Nodata returns the nodata value of pipeline rasters, which is always NaN.
func (p Profile) Nodata() float64 { return math.NaN() }

// Shape returns the profile dimensions.
func (p Profile) Shape() Shape { return Shape{Height: p.Height, Width: p.Width} }

// Bounds returns the world extent of the grid.
func (p Profile) Bounds() Bounds {
	b := EmptyBounds()
	for _, c := range [][2]float64{{0, 0}, {float64(p.Width), 0}, {0, float64(p.Height)}, {float64(p.Width), float64(p.Height)}} {
		x, y := p.Transform.Apply(c[0], c[1])
		b = b.Extend(x, y)
	}
	return b
}

// Source is a readable single-band grid. Band implements it directly; warped
// and decoded-image sources compute values on demand.
type Source interface {
	Profile() Profile
	// Value returns the pixel at (row, col), NaN when it holds no data.
	Value(row, col int) float64
}

// Band is an in-memory single-band raster stored row-major.
type Band struct {
	Data      []float64
	Width     int
	Height    int
	Transform Affine
	CRS       crs.CRS
}

// NewBand allocates a band filled with NaN.
func NewBand(width, height int, t Affine, c crs.CRS) *Band {
	data := make([]float64, width*height)
	for i := range data {
		data[i] = math.NaN()
	}
	return &Band{Data: data, Width: width, Height: height, Transform: t, CRS: c}
}

// Shape returns the band dimensions.
func (b *Band) Shape() Shape { return Shape{Height: b.Height, Width: b.Width} }

// Profile returns the band grid description.
func (b *Band) Profile() Profile {
	return Profile{CRS: b.CRS, Transform: b.Transform, Width: b.Width, Height: b.Height}
}

// Value implements Source.
func (b *Band) Value(row, col int) float64 {
	return b.Data[row*b.Width+col]
}

// Bounds is an axis-aligned world extent.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// EmptyBounds returns bounds that any point will extend.
func EmptyBounds() Bounds {
	return Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// Extend grows the bounds to include (x, y).
func (b Bounds) Extend(x, y float64) Bounds {
	return Bounds{
		MinX: math.Min(b.MinX, x), MinY: math.Min(b.MinY, y),
		MaxX: math.Max(b.MaxX, x), MaxY: math.Max(b.MaxY, y),
	}
}

// Union returns the smallest bounds covering b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return b.Extend(o.MinX, o.MinY).Extend(o.MaxX, o.MaxY)
}

// Empty reports whether the bounds contain no area.
func (b Bounds) Empty() bool {
	return !(b.MaxX > b.MinX && b.MaxY > b.MinY)
}
