// Package geotifftest writes small uncompressed 16-bit GeoTIFFs for tests.
package geotifftest

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// Options describes the GeoTIFF to write.
type Options struct {
	Width  int
	Height int
	// Pixels are row-major; len must be Width*Height.
	Pixels []uint16
	// Left and Top are the world coordinates of the top-left corner.
	Left      float64
	Top       float64
	PixelSize float64
	EPSG      uint16
	// Nodata is written as the GDAL_NODATA tag when non-empty.
	Nodata       string
	PixelIsPoint bool
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var le = binary.LittleEndian

func shorts(v ...uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		le.PutUint16(b[2*i:], x)
	}
	return b
}

func longs(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		le.PutUint32(b[4*i:], x)
	}
	return b
}

func doubles(v ...float64) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		le.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return b
}

// Encode returns the GeoTIFF bytes.
func Encode(o Options) []byte {
	pix := make([]byte, 2*o.Width*o.Height)
	for i, v := range o.Pixels {
		le.PutUint16(pix[2*i:], v)
	}

	modelType, csKey := uint16(1), uint16(3072)
	if o.EPSG == 4326 {
		modelType, csKey = 2, 2048
	}
	rasterType := uint16(1)
	if o.PixelIsPoint {
		rasterType = 2
	}
	keys := shorts(1, 1, 0, 3,
		1024, 0, 1, modelType,
		1025, 0, 1, rasterType,
		csKey, 0, 1, o.EPSG,
	)

	entries := []entry{
		{256, 4, 1, longs(uint32(o.Width))},
		{257, 4, 1, longs(uint32(o.Height))},
		{258, 3, 1, shorts(16)},
		{259, 3, 1, shorts(1)},
		{262, 3, 1, shorts(1)},
		{273, 4, 1, nil}, // patched below
		{277, 3, 1, shorts(1)},
		{278, 4, 1, longs(uint32(o.Height))},
		{279, 4, 1, longs(uint32(len(pix)))},
		{33550, 12, 3, doubles(o.PixelSize, o.PixelSize, 0)},
		{33922, 12, 6, doubles(0, 0, 0, o.Left, o.Top, 0)},
		{34735, 3, uint32(len(keys) / 2), keys},
	}
	if o.Nodata != "" {
		s := append([]byte(o.Nodata), 0)
		entries = append(entries, entry{42113, 2, uint32(len(s)), s})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdSize := 2 + 12*len(entries) + 4
	extraStart := 8 + ifdSize
	extraLen := 0
	for _, e := range entries {
		if len(e.data) > 4 {
			extraLen += len(e.data)
		}
	}
	pixOffset := uint32(extraStart + extraLen)
	for i := range entries {
		if entries[i].tag == 273 {
			entries[i].data = longs(pixOffset)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write(shorts(42))
	buf.Write(longs(8))

	var extra bytes.Buffer
	buf.Write(shorts(uint16(len(entries))))
	for _, e := range entries {
		buf.Write(shorts(e.tag, e.typ))
		buf.Write(longs(e.count))
		if len(e.data) > 4 {
			buf.Write(longs(uint32(extraStart + extra.Len())))
			extra.Write(e.data)
			continue
		}
		v := make([]byte, 4)
		copy(v, e.data)
		buf.Write(v)
	}
	buf.Write(longs(0))
	buf.Write(extra.Bytes())
	buf.Write(pix)
	return buf.Bytes()
}
