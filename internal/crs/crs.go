// Package crs identifies the coordinate reference systems used by Sentinel-2
// tiles and district boundaries and converts points between them.
//
// Tiles are always identified by EPSG code: geographic WGS84 (EPSG:4326), Web
// Mercator (EPSG:3857) or a WGS84 UTM zone (EPSG:326xx north, EPSG:327xx
// south). Boundary files may carry any projection github.com/ctessum/geom/proj
// can parse from WKT; those are kept as their WKT definition.
package crs

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// Well-known EPSG codes.
const (
	EPSGWGS84       = 4326
	EPSGWebMercator = 3857
)

// CRS is a coordinate reference system identified by its EPSG code, or by a
// WKT definition when no supported code describes it. The zero value is an
// unknown CRS.
type CRS struct {
	EPSG int
	WKT  string
}

// WGS84 is geographic longitude/latitude on the WGS84 datum.
var WGS84 = CRS{EPSG: EPSGWGS84}

// WebMercator is the spherical pseudo-Mercator projection.
var WebMercator = CRS{EPSG: EPSGWebMercator}

// FromEPSG returns the CRS for code, or an error when the code is unsupported.
func FromEPSG(code int) (CRS, error) {
	c := CRS{EPSG: code}
	if _, err := c.definition(); err != nil {
		return CRS{}, err
	}
	return c, nil
}

// UTM returns the WGS84 UTM CRS for the given zone and hemisphere.
func UTM(zone int, north bool) (CRS, error) {
	if zone < 1 || zone > 60 {
		return CRS{}, eris.Errorf("crs: invalid UTM zone %d", zone)
	}
	if north {
		return CRS{EPSG: 32600 + zone}, nil
	}
	return CRS{EPSG: 32700 + zone}, nil
}

// Parse accepts "EPSG:32643", "epsg:4326", a bare code such as "32643", or the
// OGC URN form "urn:ogc:def:crs:EPSG::4326".
func Parse(s string) (CRS, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return CRS{}, eris.New("crs: empty CRS identifier")
	}
	upper := strings.ToUpper(v)
	switch {
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:"):
		v = v[strings.LastIndex(v, ":")+1:]
	case strings.HasPrefix(upper, "EPSG:"):
		v = v[len("EPSG:"):]
	}
	code, err := strconv.Atoi(v)
	if err != nil {
		return CRS{}, eris.Wrapf(err, "crs: parse %q", s)
	}
	return FromEPSG(code)
}

var authorityRe = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\s*\]\s*$`)

// FromWKT parses an OGC or ESRI WKT definition such as a shapefile .prj.
// Definitions equivalent to a supported EPSG code are returned as that code;
// any other projection the proj package implements is kept as WKT.
func FromWKT(wkt string) (CRS, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return CRS{}, eris.New("crs: empty WKT")
	}
	sr, err := parseSR(wkt)
	if err != nil {
		return CRS{}, err
	}
	if m := authorityRe.FindStringSubmatch(wkt); m != nil {
		code, _ := strconv.Atoi(m[1])
		if c, err := FromEPSG(code); err == nil {
			return c, nil
		}
	}
	if c, ok := identify(sr); ok {
		return c, nil
	}
	return CRS{WKT: wkt}, nil
}

// identify maps a parsed WGS84 definition onto a supported EPSG code.
func identify(sr *proj.SR) (CRS, bool) {
	if !strings.EqualFold(sr.DatumCode, "wgs84") {
		return CRS{}, false
	}
	switch strings.ToLower(sr.Name) {
	case "longlat":
		return WGS84, true
	case "mercator_auxiliary_sphere", "popular visualisation pseudo mercator":
		return WebMercator, true
	case "transverse_mercator", "transverse mercator":
		if sr.K0 != 0.9996 || sr.X0 != 500000 || sr.Lat0 != 0 {
			return CRS{}, false
		}
		cm := sr.Long0 * 180 / math.Pi
		zone := math.Round((cm + 183) / 6)
		if math.Abs(zone*6-183-cm) > 1e-9 {
			return CRS{}, false
		}
		var north bool
		switch sr.Y0 {
		case 0:
			north = true
		case 10000000:
		default:
			return CRS{}, false
		}
		c, err := UTM(int(zone), north)
		return c, err == nil
	}
	return CRS{}, false
}

// IsZero reports whether the CRS is unset.
func (c CRS) IsZero() bool { return c.EPSG == 0 && c.WKT == "" }

// Supported reports whether points can be transformed to and from c.
func (c CRS) Supported() bool {
	_, err := c.definition()
	return err == nil
}

// Geographic reports whether coordinates are WGS84 longitude/latitude degrees.
func (c CRS) Geographic() bool { return c.EPSG == EPSGWGS84 }

func (c CRS) String() string {
	switch {
	case c.EPSG != 0:
		return fmt.Sprintf("EPSG:%d", c.EPSG)
	case c.WKT != "":
		return c.WKT
	default:
		return "unknown"
	}
}

// MarshalText encodes the CRS as "EPSG:<code>" or its WKT.
func (c CRS) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes the forms accepted by Parse and FromWKT.
func (c *CRS) UnmarshalText(b []byte) error {
	s := string(b)
	if len(b) == 0 || s == "unknown" {
		*c = CRS{}
		return nil
	}
	parse := Parse
	if strings.Contains(s, "[") {
		parse = FromWKT
	}
	parsed, err := parse(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// definition returns the PROJ.4 string or WKT handed to the proj package.
func (c CRS) definition() (string, error) {
	if c.EPSG == 0 {
		if c.WKT == "" {
			return "", eris.New("crs: unknown CRS")
		}
		return c.WKT, nil
	}
	switch {
	case c.EPSG == EPSGWGS84:
		return "+proj=longlat +ellps=WGS84 +datum=WGS84 +units=degrees", nil
	case c.EPSG == EPSGWebMercator:
		return "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs", nil
	case c.EPSG > 32600 && c.EPSG <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +ellps=WGS84 +datum=WGS84 +units=m +no_defs", c.EPSG-32600), nil
	case c.EPSG > 32700 && c.EPSG <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +ellps=WGS84 +datum=WGS84 +units=m +no_defs", c.EPSG-32700), nil
	}
	return "", eris.Errorf("crs: unsupported EPSG code %d", c.EPSG)
}

// spatialRef parses a fresh proj.SR for c. SRs are mutated while
// transforming, so each Transformer owns its own.
func (c CRS) spatialRef() (*proj.SR, error) {
	def, err := c.definition()
	if err != nil {
		return nil, err
	}
	return parseSR(def)
}

func parseSR(def string) (sr *proj.SR, err error) {
	// The WKT parser indexes into sections without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			sr, err = nil, eris.Errorf("crs: malformed projection definition: %v", r)
		}
	}()
	sr, err = proj.Parse(def)
	if err != nil {
		return nil, eris.Wrap(err, "crs: parse projection")
	}
	if _, _, err := sr.Transformers(); err != nil {
		return nil, eris.Wrapf(err, "crs: unsupported projection %q", sr.Name)
	}
	return sr, nil
}
