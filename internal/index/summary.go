package index

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/sprawl-cli/internal/raster"
)

// Stats describes the finite values of an index raster. All fields are zero
// when Count is zero.
type Stats struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// Summary condenses a Result into numbers worth storing or printing.
type Summary struct {
	NDVI           Stats   `json:"ndvi" yaml:"ndvi"`
	NDBI           Stats   `json:"ndbi" yaml:"ndbi"`
	TotalPixels    int     `json:"total_pixels" yaml:"total_pixels"`
	ValidPixels    int     `json:"valid_pixels" yaml:"valid_pixels"`
	SprawlPixels   int     `json:"sprawl_pixels" yaml:"sprawl_pixels"`
	SprawlFraction float64 `json:"sprawl_fraction" yaml:"sprawl_fraction"`
	PixelAreaM2    float64 `json:"pixel_area_m2" yaml:"pixel_area_m2"`
	SprawlAreaKm2  float64 `json:"sprawl_area_km2" yaml:"sprawl_area_km2"`
}

// Summarize computes NaN-aware statistics over r.
func Summarize(r Result) Summary {
	s := Summary{
		NDVI:         describe(r.NDVI.Data),
		NDBI:         describe(r.NDBI.Data),
		TotalPixels:  len(r.Valid.Data),
		ValidPixels:  r.Valid.Count(),
		SprawlPixels: r.Sprawl.Count(),
		PixelAreaM2:  pixelAreaM2(r.Profile),
	}
	if s.ValidPixels > 0 {
		s.SprawlFraction = float64(s.SprawlPixels) / float64(s.ValidPixels)
	}
	s.SprawlAreaKm2 = float64(s.SprawlPixels) * s.PixelAreaM2 / 1e6
	return s
}

func describe(data []float64) Stats {
	finite := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return Stats{}
	}
	sort.Float64s(finite)

	st := Stats{
		Count:  len(finite),
		Min:    floats.Min(finite),
		Max:    floats.Max(finite),
		Median: stat.Quantile(0.5, stat.Empirical, finite, nil),
	}
	if len(finite) == 1 {
		st.Mean = finite[0]
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(finite, nil)
	return st
}

const metresPerDegree = 111319.49079327357

// pixelAreaM2 returns the ground area of one pixel. Geographic rasters use
// the latitude of the raster centre.
func pixelAreaM2(p raster.Profile) float64 {
	t := p.Transform
	area := math.Abs(t.A*t.E - t.B*t.D)
	if !p.CRS.Geographic() {
		return area
	}
	_, lat := t.Apply(float64(p.Width)/2, float64(p.Height)/2)
	return area * metresPerDegree * metresPerDegree * math.Cos(lat*math.Pi/180)
}
