package geotiff

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// TIFF tag IDs read by the decoder.
const (
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALNodata          = 42113
)

// GeoKey IDs.
const (
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedCS    = 3072
)

const rasterPixelIsPoint = 2

// TIFF field types and their byte sizes.
var typeSize = map[uint16]int{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

type field struct {
	typ   uint16
	count uint32
	data  []byte
}

// geoTags holds the raw georeferencing fields of the first IFD.
type geoTags struct {
	pixelScale []float64
	tiepoints  []float64
	transform  []float64
	geoKeys    []uint16
	nodata     string
}

// readGeoTags walks the first IFD of a classic (non-Big) TIFF and extracts
// the GeoTIFF fields. Pixel data is decoded separately.
func readGeoTags(buf []byte) (*geoTags, error) {
	if len(buf) < 8 {
		return nil, eris.New("geotiff: file too short")
	}
	var order binary.ByteOrder
	switch string(buf[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, eris.New("geotiff: not a TIFF file")
	}
	if magic := order.Uint16(buf[2:4]); magic != 42 {
		if magic == 43 {
			return nil, eris.New("geotiff: BigTIFF is not supported")
		}
		return nil, eris.Errorf("geotiff: bad TIFF magic %d", magic)
	}

	off := int(order.Uint32(buf[4:8]))
	if off+2 > len(buf) {
		return nil, eris.New("geotiff: IFD offset out of range")
	}
	n := int(order.Uint16(buf[off : off+2]))
	if off+2+n*12 > len(buf) {
		return nil, eris.New("geotiff: truncated IFD")
	}

	tags := &geoTags{}
	for i := 0; i < n; i++ {
		e := buf[off+2+i*12 : off+2+(i+1)*12]
		id := order.Uint16(e[0:2])
		switch id {
		case tagModelPixelScale, tagModelTiepoint, tagModelTransformation, tagGeoKeyDirectory, tagGDALNodata:
		default:
			continue
		}
		f, err := readField(buf, e, order)
		if err != nil {
			return nil, eris.Wrapf(err, "geotiff: tag %d", id)
		}
		switch id {
		case tagModelPixelScale:
			tags.pixelScale = f.float64s(order)
		case tagModelTiepoint:
			tags.tiepoints = f.float64s(order)
		case tagModelTransformation:
			tags.transform = f.float64s(order)
		case tagGeoKeyDirectory:
			tags.geoKeys = f.uint16s(order)
		case tagGDALNodata:
			tags.nodata = strings.TrimRight(string(f.data), "\x00 ")
		}
	}
	return tags, nil
}

func readField(buf, entry []byte, order binary.ByteOrder) (field, error) {
	f := field{typ: order.Uint16(entry[2:4]), count: order.Uint32(entry[4:8])}
	size, ok := typeSize[f.typ]
	if !ok {
		return f, eris.Errorf("unsupported field type %d", f.typ)
	}
	total := int(f.count) * size
	if total <= 4 {
		f.data = entry[8 : 8+total]
		return f, nil
	}
	off := int(order.Uint32(entry[8:12]))
	if off < 0 || off+total > len(buf) {
		return f, eris.New("field data out of range")
	}
	f.data = buf[off : off+total]
	return f, nil
}

func (f field) float64s(order binary.ByteOrder) []float64 {
	out := make([]float64, 0, f.count)
	for i := 0; i < int(f.count); i++ {
		switch f.typ {
		case 12:
			out = append(out, math.Float64frombits(order.Uint64(f.data[i*8:])))
		case 11:
			out = append(out, float64(math.Float32frombits(order.Uint32(f.data[i*4:]))))
		}
	}
	return out
}

func (f field) uint16s(order binary.ByteOrder) []uint16 {
	out := make([]uint16, 0, f.count)
	if f.typ != 3 {
		return out
	}
	for i := 0; i < int(f.count); i++ {
		out = append(out, order.Uint16(f.data[i*2:]))
	}
	return out
}

// geoKey returns the inline SHORT value of a GeoKey.
func (g *geoTags) geoKey(id uint16) (uint16, bool) {
	k := g.geoKeys
	if len(k) < 4 {
		return 0, false
	}
	num := int(k[3])
	for i := 0; i < num && 4+i*4+3 < len(k); i++ {
		e := k[4+i*4 : 4+i*4+4]
		if e[0] == id && e[1] == 0 {
			return e[3], true
		}
	}
	return 0, false
}

// parseNodata returns the GDAL nodata value, or NaN and false when unset.
func (g *geoTags) parseNodata() (float64, bool) {
	if g.nodata == "" {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(g.nodata, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}
