// Package imagery describes satellite imagery tiles, the catalog and asset
// contracts the pipeline consumes, and the tile selection rules applied
// before any pixels are fetched.
package imagery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/internal/raster"
)

// DefaultMaxCloudCover is the cloud-cover ceiling (percent) used when a
// request does not set one.
const DefaultMaxCloudCover = 10.0

// Tile is one catalog item reduced to what the pipeline needs.
type Tile struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection,omitempty"`
	Acquired   time.Time         `json:"acquired"`
	CloudCover float64           `json:"cloud_cover"`
	Assets     map[string]string `json:"assets"`
	CRS        crs.CRS           `json:"crs"`
}

// Asset returns the href for band.
func (t Tile) Asset(band string) (string, bool) {
	href, ok := t.Assets[band]
	return href, ok && href != ""
}

// BBox is a WGS84 bounding box: min lon, min lat, max lon, max lat.
type BBox [4]float64

// Valid reports whether the box has positive area.
func (b BBox) Valid() bool {
	return b[2] > b[0] && b[3] > b[1]
}

// DateRange is an inclusive acquisition window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses "YYYY-MM-DD/YYYY-MM-DD". A date-only end is extended
// to the last second of that day. RFC 3339 timestamps are also accepted.
func ParseDateRange(s string) (DateRange, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return DateRange{}, eris.Errorf("imagery: date range %q must be start/end", s)
	}
	start, _, err := parseDate(parts[0])
	if err != nil {
		return DateRange{}, eris.Wrap(err, "imagery: date range start")
	}
	end, dateOnly, err := parseDate(parts[1])
	if err != nil {
		return DateRange{}, eris.Wrap(err, "imagery: date range end")
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Second)
	}
	if end.Before(start) {
		return DateRange{}, eris.Errorf("imagery: date range %q ends before it starts", s)
	}
	return DateRange{Start: start, End: end}, nil
}

func parseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t.UTC(), false, err
}

// String renders the range as an RFC 3339 interval, the form STAC expects.
func (d DateRange) String() string {
	return fmt.Sprintf("%s/%s", d.Start.UTC().Format(time.RFC3339), d.End.UTC().Format(time.RFC3339))
}

// SearchParams filters a catalog search.
type SearchParams struct {
	BBox          BBox
	DateRange     DateRange
	MaxCloudCover float64
}

// Catalog finds candidate tiles. Implementations own authentication and
// transport retries, and return an empty slice (not an error) when nothing
// matches.
type Catalog interface {
	Search(ctx context.Context, p SearchParams) ([]Tile, error)
}

// AssetOpener opens one band of a tile as a readable raster.
type AssetOpener interface {
	OpenBand(ctx context.Context, tile Tile, band string) (raster.Source, error)
}

// SortByCloudCover orders tiles by ascending cloud cover, then acquisition
// time, then ID, so ties are stable across catalog responses.
func SortByCloudCover(tiles []Tile) {
	sort.SliceStable(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.CloudCover != b.CloudCover {
			return a.CloudCover < b.CloudCover
		}
		if !a.Acquired.Equal(b.Acquired) {
			return a.Acquired.Before(b.Acquired)
		}
		return a.ID < b.ID
	})
}

// OverpassWindow bounds how far a tile's acquisition may be from the
// reference tile and still count as the same satellite pass.
const OverpassWindow = 2 * time.Hour

// SelectOverpass keeps the tiles acquired within OverpassWindow of the first
// (lowest cloud cover) tile, so a mosaic never mixes different days. Input
// order is preserved. An empty input yields an empty result.
func SelectOverpass(tiles []Tile) []Tile {
	if len(tiles) == 0 {
		return []Tile{}
	}
	ref := tiles[0].Acquired
	out := make([]Tile, 0, len(tiles))
	for _, t := range tiles {
		d := t.Acquired.Sub(ref)
		if d < 0 {
			d = -d
		}
		if d < OverpassWindow {
			out = append(out, t)
		}
	}
	return out
}

// Mosaic is a merged band plus the tiles that contributed to it, in
// priority order.
type Mosaic struct {
	Band  *raster.Band
	Tiles []Tile
}

// TileIDs returns the provenance IDs in priority order.
func (m Mosaic) TileIDs() []string {
	ids := make([]string, len(m.Tiles))
	for i, t := range m.Tiles {
		ids[i] = t.ID
	}
	return ids
}
