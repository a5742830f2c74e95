// Package index computes spectral indices and the sprawl mask from aligned
// red, near-infrared and short-wave infrared bands.
package index

import (
	"fmt"
	"math"

	"github.com/sells-group/sprawl-cli/internal/raster"
)

// Thresholds classify a pixel as sprawl when NDBI > BuiltUp and NDVI < Vegetation.
type Thresholds struct {
	BuiltUp    float64 `json:"built_up" yaml:"built_up"`
	Vegetation float64 `json:"vegetation" yaml:"vegetation"`
}

// DefaultThresholds returns the standard built-up and vegetation cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{BuiltUp: 0.05, Vegetation: 0.3}
}

// Raster is a float grid, row-major. NaN marks pixels with no index value.
type Raster struct {
	Width  int
	Height int
	Data   []float64
}

// At returns the value at row, col.
func (r Raster) At(row, col int) float64 { return r.Data[row*r.Width+col] }

// Mask is a boolean grid, row-major.
type Mask struct {
	Width  int
	Height int
	Data   []bool
}

// At returns the flag at row, col.
func (m Mask) At(row, col int) bool { return m.Data[row*m.Width+col] }

// Count returns the number of set pixels.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Result holds the index rasters and masks for one analysis.
type Result struct {
	NDVI    Raster
	NDBI    Raster
	Sprawl  Mask
	Valid   Mask
	Profile raster.Profile
}

// SafeDiv returns num/den, or NaN when den is zero or either operand is NaN.
func SafeDiv(num, den float64) float64 {
	if den == 0 || math.IsNaN(num) || math.IsNaN(den) {
		return math.NaN()
	}
	return num / den
}

// Compute runs the default thresholds over the three bands.
func Compute(red, nir, swir *raster.Band) Result {
	return DefaultThresholds().Compute(red, nir, swir)
}

// Compute derives NDVI, NDBI and the sprawl mask. A pixel is valid when red
// and nir are both positive; invalid pixels get NaN indices and are never
// sprawl. The bands must share shape, transform and CRS; Compute panics
// otherwise.
func (t Thresholds) Compute(red, nir, swir *raster.Band) Result {
	mustAlign(red, nir, "nir")
	mustAlign(red, swir, "swir")

	n := red.Width * red.Height
	res := Result{
		NDVI:    Raster{Width: red.Width, Height: red.Height, Data: make([]float64, n)},
		NDBI:    Raster{Width: red.Width, Height: red.Height, Data: make([]float64, n)},
		Sprawl:  Mask{Width: red.Width, Height: red.Height, Data: make([]bool, n)},
		Valid:   Mask{Width: red.Width, Height: red.Height, Data: make([]bool, n)},
		Profile: red.Profile(),
	}

	nan := math.NaN()
	for i := 0; i < n; i++ {
		r, ni, s := red.Data[i], nir.Data[i], swir.Data[i]
		if math.IsNaN(r) || !(r > 0) || !(ni > 0) {
			res.NDVI.Data[i] = nan
			res.NDBI.Data[i] = nan
			continue
		}
		res.Valid.Data[i] = true

		ndvi := SafeDiv(ni-r, ni+r)
		ndbi := SafeDiv(s-ni, s+ni)
		res.NDVI.Data[i] = ndvi
		res.NDBI.Data[i] = ndbi
		// NaN comparisons are false, so missing swir never counts as sprawl.
		res.Sprawl.Data[i] = ndbi > t.BuiltUp && ndvi < t.Vegetation
	}
	return res
}

func mustAlign(ref, b *raster.Band, label string) {
	if ref.Shape() != b.Shape() || ref.CRS != b.CRS || !ref.Transform.AlmostEqual(b.Transform, 1e-9) || len(b.Data) != len(ref.Data) {
		panic(fmt.Sprintf("index: %s band %dx%d %s is not aligned with red %dx%d %s",
			label, b.Height, b.Width, b.CRS, ref.Height, ref.Width, ref.CRS))
	}
}
