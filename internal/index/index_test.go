package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/internal/raster"
)

var utm43 = crs.CRS{EPSG: 32643}

func band(rows [][]float64) *raster.Band {
	return bandAt(rows, raster.NorthUp(400000, 3500000, 10, 10), utm43)
}

func bandAt(rows [][]float64, t raster.Affine, c crs.CRS) *raster.Band {
	b := &raster.Band{Width: len(rows[0]), Height: len(rows), Transform: t, CRS: c}
	for _, r := range rows {
		b.Data = append(b.Data, r...)
	}
	return b
}

func TestSafeDiv(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, SafeDiv(1, 2), 1e-12)
	assert.True(t, math.IsNaN(SafeDiv(1, 0)))
	assert.True(t, math.IsNaN(SafeDiv(0, 0)))
	assert.True(t, math.IsNaN(SafeDiv(math.NaN(), 2)))
	assert.True(t, math.IsNaN(SafeDiv(1, math.NaN())))
}

func TestCompute_NDVIExample(t *testing.T) {
	t.Parallel()

	red := band([][]float64{{0.2, 0.4}, {0, 0.3}})
	nir := band([][]float64{{0.6, 0.5}, {0, 0.5}})
	swir := band([][]float64{{0.8, 0.2}, {0.1, 0.7}})

	res := Compute(red, nir, swir)

	assert.InDelta(t, 0.5, res.NDVI.At(0, 0), 1e-4)
	assert.InDelta(t, 0.1111, res.NDVI.At(0, 1), 1e-4)
	assert.True(t, math.IsNaN(res.NDVI.At(1, 0)))
	assert.InDelta(t, 0.25, res.NDVI.At(1, 1), 1e-4)

	assert.InDelta(t, 0.2/1.4, res.NDBI.At(0, 0), 1e-9)
	assert.True(t, math.IsNaN(res.NDBI.At(1, 0)), "invalid pixels have no NDBI")

	assert.Equal(t, []bool{true, true, false, true}, res.Valid.Data)
	assert.Equal(t, []bool{false, false, false, true}, res.Sprawl.Data)
	assert.Equal(t, red.Profile(), res.Profile)
}

func TestCompute_DoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	red := band([][]float64{{0, 0.4}})
	nir := band([][]float64{{0.5, 0.5}})
	swir := band([][]float64{{0.3, 0.3}})
	Compute(red, nir, swir)

	assert.Equal(t, []float64{0, 0.4}, red.Data)
	assert.Equal(t, []float64{0.5, 0.5}, nir.Data)
}

func TestCompute_NaNHandling(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	red := band([][]float64{{nan, 0.2, 0.2, -0.1}})
	nir := band([][]float64{{0.5, nan, 0.3, 0.5}})
	swir := band([][]float64{{0.5, 0.5, nan, 0.5}})

	res := Compute(red, nir, swir)
	assert.Equal(t, []bool{false, false, true, false}, res.Valid.Data)
	assert.Equal(t, []bool{false, false, false, false}, res.Sprawl.Data)
	assert.InDelta(t, 0.2, res.NDVI.At(0, 2), 1e-9)
	assert.True(t, math.IsNaN(res.NDBI.At(0, 2)))
}

func TestThresholds_Compute(t *testing.T) {
	t.Parallel()

	// NDVI = 0.2, NDBI = 0.1.
	red := band([][]float64{{0.4}})
	nir := band([][]float64{{0.6}})
	swir := band([][]float64{{0.7333333333333333}})

	assert.True(t, Compute(red, nir, swir).Sprawl.At(0, 0))
	strict := Thresholds{BuiltUp: 0.2, Vegetation: 0.3}
	assert.False(t, strict.Compute(red, nir, swir).Sprawl.At(0, 0))
}

func TestCompute_PanicsOnMisalignment(t *testing.T) {
	t.Parallel()

	red := band([][]float64{{1, 1}})
	assert.Panics(t, func() { Compute(red, band([][]float64{{1}, {1}}), band([][]float64{{1, 1}})) })

	shifted := bandAt([][]float64{{1, 1}}, raster.NorthUp(400010, 3500000, 10, 10), utm43)
	assert.Panics(t, func() { Compute(red, band([][]float64{{1, 1}}), shifted) })

	other := bandAt([][]float64{{1, 1}}, raster.NorthUp(400000, 3500000, 10, 10), crs.CRS{EPSG: 32642})
	assert.Panics(t, func() { Compute(red, other, band([][]float64{{1, 1}})) })
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	red := band([][]float64{{0.2, 0.4}, {0, 0.3}})
	nir := band([][]float64{{0.6, 0.5}, {0, 0.5}})
	swir := band([][]float64{{0.8, 0.2}, {0.1, 0.7}})

	s := Summarize(Compute(red, nir, swir))
	assert.Equal(t, 4, s.TotalPixels)
	assert.Equal(t, 3, s.ValidPixels)
	assert.Equal(t, 1, s.SprawlPixels)
	assert.InDelta(t, 1.0/3, s.SprawlFraction, 1e-12)

	assert.Equal(t, 3, s.NDVI.Count)
	assert.InDelta(t, (0.5+1.0/9+0.25)/3, s.NDVI.Mean, 1e-9)
	assert.InDelta(t, 1.0/9, s.NDVI.Min, 1e-9)
	assert.InDelta(t, 0.5, s.NDVI.Max, 1e-9)
	assert.InDelta(t, 0.25, s.NDVI.Median, 1e-9)
	assert.Greater(t, s.NDVI.StdDev, 0.0)

	assert.InDelta(t, 100, s.PixelAreaM2, 1e-9)
	assert.InDelta(t, 100e-6, s.SprawlAreaKm2, 1e-12)
}

func TestSummarize_NoValidPixels(t *testing.T) {
	t.Parallel()

	zero := band([][]float64{{0, 0}})
	s := Summarize(Compute(zero, zero, zero))
	assert.Equal(t, Stats{}, s.NDVI)
	assert.Equal(t, 0, s.ValidPixels)
	assert.Zero(t, s.SprawlFraction)
}

func TestPixelArea_Geographic(t *testing.T) {
	t.Parallel()

	p := raster.Profile{CRS: crs.WGS84, Transform: raster.NorthUp(0, 0.5, 0.001, 0.001), Width: 1000, Height: 1000}
	// Raster centred on the equator: one millidegree is about 111.3 m.
	assert.InDelta(t, 111.32*111.32, pixelAreaM2(p), 1)
}
