package raster

import (
	"math"

	"go.uber.org/zap"
)

// Reconcile forces b to the target shape with nearest-neighbour rescaling.
// When b already has that shape the same band is returned unchanged.
//
// This corrects incidental drift between bands that were fetched and merged
// independently; it never interpolates, so no new pixel values appear. The
// transform is scaled so the band keeps its world extent.
func Reconcile(b *Band, target Shape, label string) *Band {
	if b.Shape() == target {
		return b
	}
	zap.L().Debug("raster: reconciling band shape",
		zap.String("band", label),
		zap.Int("from_height", b.Height),
		zap.Int("from_width", b.Width),
		zap.Int("to_height", target.Height),
		zap.Int("to_width", target.Width),
	)

	out := &Band{
		Data:      make([]float64, target.Width*target.Height),
		Width:     target.Width,
		Height:    target.Height,
		Transform: b.Transform,
		CRS:       b.CRS,
	}
	if target.Width > 0 && target.Height > 0 {
		out.Transform = b.Transform.Scale(
			float64(b.Width)/float64(target.Width),
			float64(b.Height)/float64(target.Height),
		)
	}
	if b.Width == 0 || b.Height == 0 {
		for i := range out.Data {
			out.Data[i] = math.NaN()
		}
		return out
	}

	cols := nearestIndex(b.Width, target.Width)
	for r := 0; r < target.Height; r++ {
		sr := nearestIndex1(r, b.Height, target.Height)
		src := b.Data[sr*b.Width : (sr+1)*b.Width]
		dst := out.Data[r*target.Width : (r+1)*target.Width]
		for c, sc := range cols {
			dst[c] = src[sc]
		}
	}
	return out
}

// AlignTo reconciles b to ref's shape and places it on ref's grid, so the
// result shares ref's shape, transform and CRS exactly.
func AlignTo(b *Band, ref Profile, label string) *Band {
	r := Reconcile(b, ref.Shape(), label)
	if r.Transform == ref.Transform && r.CRS == ref.CRS {
		return r
	}
	return &Band{Data: r.Data, Width: r.Width, Height: r.Height, Transform: ref.Transform, CRS: ref.CRS}
}

// nearestIndex maps every output index to its source index for one axis.
func nearestIndex(in, out int) []int {
	idx := make([]int, out)
	for o := range idx {
		idx[o] = nearestIndex1(o, in, out)
	}
	return idx
}

// nearestIndex1 aligns the first and last samples of both axes and rounds
// in between, matching the corner-aligned order-0 zoom of common array
// libraries.
func nearestIndex1(o, in, out int) int {
	if out <= 1 || in <= 1 {
		return 0
	}
	s := int(math.Round(float64(o) * float64(in-1) / float64(out-1)))
	return clampI(s, 0, in-1)
}
