package stac

import (
	"strconv"
	"strings"
	"time"
)

// SearchRequest describes an item search.
type SearchRequest struct {
	Collections []string
	BBox        [4]float64
	// Datetime is an RFC 3339 interval, e.g. "2023-01-01T00:00:00Z/2023-05-30T23:59:59Z".
	Datetime string
	// MaxCloudCover filters items with eo:cloud_cover below the value.
	// Zero or less disables the filter.
	MaxCloudCover float64
}

// Item is a STAC item as returned by /search.
type Item struct {
	ID         string           `json:"id"`
	Collection string           `json:"collection"`
	BBox       []float64        `json:"bbox"`
	Properties Properties       `json:"properties"`
	Assets     map[string]Asset `json:"assets"`
}

// Properties holds the item properties the pipeline reads.
type Properties struct {
	Datetime   time.Time `json:"datetime"`
	CloudCover *float64  `json:"eo:cloud_cover,omitempty"`
	EPSG       *int      `json:"proj:epsg,omitempty"`
	Code       string    `json:"proj:code,omitempty"`
}

// ProjectionEPSG returns the item's EPSG code from proj:epsg or proj:code.
// Zero means unknown.
func (p Properties) ProjectionEPSG() int {
	if p.EPSG != nil {
		return *p.EPSG
	}
	if code, ok := strings.CutPrefix(strings.ToUpper(p.Code), "EPSG:"); ok {
		if n, err := strconv.Atoi(code); err == nil {
			return n
		}
	}
	return 0
}

// Asset is a downloadable item asset.
type Asset struct {
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Link is a STAC link. Paginated searches carry rel=next links whose method
// and body describe the follow-up request.
type Link struct {
	Rel    string         `json:"rel"`
	Href   string         `json:"href"`
	Method string         `json:"method,omitempty"`
	Body   map[string]any `json:"body,omitempty"`
	Merge  bool           `json:"merge,omitempty"`
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []Item `json:"features"`
	Links    []Link `json:"links"`
}
