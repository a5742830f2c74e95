// Package geotiff decodes single-band GeoTIFF imagery into raster sources.
//
// Pixels are decoded with golang.org/x/image/tiff (8 and 16-bit grayscale,
// stripped or tiled, uncompressed/LZW/Deflate). Georeferencing is read from
// the ModelPixelScale/ModelTiepoint or ModelTransformation tags and the
// GeoKey directory.
package geotiff

import (
	"bytes"
	"image"
	"math"

	"github.com/rotisserie/eris"
	"golang.org/x/image/tiff"

	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/internal/raster"
)

// Image is a decoded GeoTIFF band. It implements raster.Source and keeps the
// integer pixels as decoded; values are converted to float on read.
type Image struct {
	profile   raster.Profile
	gray16    *image.Gray16
	gray8     *image.Gray
	nodata    float64
	hasNodata bool
}

// Decode parses a GeoTIFF held in memory.
func Decode(data []byte) (*Image, error) {
	tags, err := readGeoTags(data)
	if err != nil {
		return nil, err
	}
	transform, err := tags.affine()
	if err != nil {
		return nil, err
	}
	c, err := tags.crs()
	if err != nil {
		return nil, err
	}

	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "geotiff: decode pixels")
	}

	out := &Image{}
	switch im := img.(type) {
	case *image.Gray16:
		out.gray16 = im
	case *image.Gray:
		out.gray8 = im
	default:
		return nil, eris.Errorf("geotiff: unsupported pixel layout %T", img)
	}
	bounds := img.Bounds()
	out.profile = raster.Profile{
		CRS:       c,
		Transform: transform,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}
	out.nodata, out.hasNodata = tags.parseNodata()
	return out, nil
}

// Profile implements raster.Source.
func (m *Image) Profile() raster.Profile { return m.profile }

// Value implements raster.Source. Pixels equal to the file's nodata value
// read as NaN.
func (m *Image) Value(row, col int) float64 {
	var v float64
	if m.gray16 != nil {
		i := row*m.gray16.Stride + col*2
		v = float64(uint16(m.gray16.Pix[i])<<8 | uint16(m.gray16.Pix[i+1]))
	} else {
		v = float64(m.gray8.Pix[row*m.gray8.Stride+col])
	}
	if m.hasNodata && v == m.nodata {
		return math.NaN()
	}
	return v
}

func (g *geoTags) affine() (raster.Affine, error) {
	if len(g.transform) >= 16 {
		m := g.transform
		return raster.Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}, nil
	}
	if len(g.pixelScale) < 2 || len(g.tiepoints) < 6 {
		return raster.Affine{}, eris.New("geotiff: missing georeferencing tags")
	}
	sx, sy := g.pixelScale[0], g.pixelScale[1]
	i, j, x, y := g.tiepoints[0], g.tiepoints[1], g.tiepoints[3], g.tiepoints[4]
	t := raster.Affine{A: sx, C: x - i*sx, E: -sy, F: y + j*sy}

	if rt, ok := g.geoKey(keyRasterType); ok && rt == rasterPixelIsPoint {
		t = t.Translate(-0.5, -0.5)
	}
	return t, nil
}

func (g *geoTags) crs() (crs.CRS, error) {
	if code, ok := g.geoKey(keyProjectedCS); ok && code != 0 && code != 32767 {
		return crs.FromEPSG(int(code))
	}
	if code, ok := g.geoKey(keyGeographicType); ok && code != 0 && code != 32767 {
		return crs.FromEPSG(int(code))
	}
	return crs.CRS{}, eris.New("geotiff: no EPSG code in GeoKey directory")
}
