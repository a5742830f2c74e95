package raster

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sprawl-cli/internal/crs"
)

// edgeSamples is the number of points sampled along each source edge when
// estimating the reprojected extent.
const edgeSamples = 21

// Warped is a virtual reprojection of a Source into another CRS. Pixels are
// computed on read by inverse-mapping the destination pixel centre into the
// source grid and taking the nearest source pixel, so only the pixels that a
// later resample actually touches are ever evaluated.
type Warped struct {
	src     Source
	profile Profile
	toSrc   *crs.Transformer
	srcInv  Affine
	srcW    int
	srcH    int
}

// Warp reprojects src into dst. The output grid is north-up with square
// pixels whose size preserves the source's diagonal pixel count.
func Warp(src Source, dst crs.CRS) (*Warped, error) {
	sp := src.Profile()
	if sp.Width == 0 || sp.Height == 0 {
		return nil, eris.New("raster: warp of empty source")
	}
	fwd, err := crs.NewTransformer(sp.CRS, dst)
	if err != nil {
		return nil, eris.Wrap(err, "raster: warp")
	}
	inv, err := crs.NewTransformer(dst, sp.CRS)
	if err != nil {
		return nil, eris.Wrap(err, "raster: warp")
	}
	srcInv, err := sp.Transform.Inverse()
	if err != nil {
		return nil, eris.Wrap(err, "raster: warp")
	}

	b := EmptyBounds()
	w, h := float64(sp.Width), float64(sp.Height)
	for i := 0; i < edgeSamples; i++ {
		f := float64(i) / float64(edgeSamples-1)
		for _, px := range [][2]float64{{f * w, 0}, {f * w, h}, {0, f * h}, {w, f * h}} {
			x, y := sp.Transform.Apply(px[0], px[1])
			tx, ty, err := fwd.Transform(x, y)
			if err != nil || math.IsNaN(tx) || math.IsNaN(ty) {
				continue
			}
			b = b.Extend(tx, ty)
		}
	}
	if b.Empty() {
		return nil, eris.Errorf("raster: warp to %s produced an empty extent", dst)
	}

	res := math.Hypot(b.MaxX-b.MinX, b.MaxY-b.MinY) / math.Hypot(w, h)
	outW := int(math.Ceil((b.MaxX - b.MinX) / res))
	outH := int(math.Ceil((b.MaxY - b.MinY) / res))

	return &Warped{
		src: src,
		profile: Profile{
			CRS:       dst,
			Transform: NorthUp(b.MinX, b.MaxY, res, res),
			Width:     outW,
			Height:    outH,
		},
		toSrc:  inv,
		srcInv: srcInv,
		srcW:   sp.Width,
		srcH:   sp.Height,
	}, nil
}

// Profile implements Source.
func (w *Warped) Profile() Profile { return w.profile }

// Value implements Source.
func (w *Warped) Value(row, col int) float64 {
	x, y := w.profile.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
	sx, sy, err := w.toSrc.Transform(x, y)
	if err != nil {
		return math.NaN()
	}
	fc, fr := w.srcInv.Apply(sx, sy)
	c, r := int(math.Floor(fc)), int(math.Floor(fr))
	if c < 0 || r < 0 || c >= w.srcW || r >= w.srcH {
		return math.NaN()
	}
	return w.src.Value(r, c)
}
