package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// ErrEmptyResample is returned when scaling would produce a zero-sized grid.
var ErrEmptyResample = eris.New("raster: resampled grid has a zero dimension")

// ResampleBilinear reads src onto a grid of round(h·scale) × round(w·scale)
// pixels using bilinear interpolation. The returned transform covers the same
// world extent as src. NaN neighbours are dropped from the weighting; a pixel
// whose four neighbours are all NaN stays NaN.
func ResampleBilinear(src Source, scale float64) (*Band, error) {
	if !(scale > 0 && scale <= 1) {
		return nil, eris.Errorf("raster: scale %v outside (0, 1]", scale)
	}
	p := src.Profile()
	h := int(math.Round(float64(p.Height) * scale))
	w := int(math.Round(float64(p.Width) * scale))
	if h == 0 || w == 0 {
		return nil, eris.Wrapf(ErrEmptyResample, "raster: %dx%d at scale %v", p.Width, p.Height, scale)
	}

	sx := float64(p.Width) / float64(w)
	sy := float64(p.Height) / float64(h)
	out := &Band{
		Data:      make([]float64, w*h),
		Width:     w,
		Height:    h,
		Transform: p.Transform.Scale(sx, sy),
		CRS:       p.CRS,
	}

	for r := 0; r < h; r++ {
		fy := clampF((float64(r)+0.5)*sy-0.5, 0, float64(p.Height-1))
		y0 := int(fy)
		y1 := min(y0+1, p.Height-1)
		wy := fy - float64(y0)
		for c := 0; c < w; c++ {
			fx := clampF((float64(c)+0.5)*sx-0.5, 0, float64(p.Width-1))
			x0 := int(fx)
			x1 := min(x0+1, p.Width-1)
			wx := fx - float64(x0)

			out.Data[r*w+c] = blend(
				src.Value(y0, x0), (1-wx)*(1-wy),
				src.Value(y0, x1), wx*(1-wy),
				src.Value(y1, x0), (1-wx)*wy,
				src.Value(y1, x1), wx*wy,
			)
		}
	}
	return out, nil
}

// blend computes a weighted mean of value/weight pairs, skipping NaN values.
func blend(vw ...float64) float64 {
	var sum, weight float64
	for i := 0; i+1 < len(vw); i += 2 {
		v, wt := vw[i], vw[i+1]
		if math.IsNaN(v) || wt == 0 {
			continue
		}
		sum += v * wt
		weight += wt
	}
	if weight == 0 {
		return math.NaN()
	}
	return sum / weight
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
