package imagery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2023, 2, 10, 5, 40, 0, 0, time.UTC)

func tileAt(id string, cloud float64, offset time.Duration) Tile {
	return Tile{ID: id, CloudCover: cloud, Acquired: base.Add(offset)}
}

func TestSelectOverpass_Empty(t *testing.T) {
	t.Parallel()

	got := SelectOverpass(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSelectOverpass_KeepsSamePass(t *testing.T) {
	t.Parallel()

	tiles := []Tile{
		tileAt("ref", 0.5, 0),
		tileAt("same-pass", 1, 5*time.Minute),
		tileAt("earlier-pass", 2, -90*time.Minute),
		tileAt("next-day", 3, 24*time.Hour),
		tileAt("edge", 4, 2*time.Hour),
		tileAt("5-days", 4, 5*24*time.Hour),
	}

	got := SelectOverpass(tiles)
	ids := Mosaic{Tiles: got}.TileIDs()
	assert.Equal(t, []string{"ref", "same-pass", "earlier-pass"}, ids)
}

func TestSelectOverpass_Properties(t *testing.T) {
	t.Parallel()

	tiles := []Tile{
		tileAt("a", 0, 0),
		tileAt("b", 1, time.Hour),
		tileAt("c", 2, 3*time.Hour),
		tileAt("d", 3, -119*time.Minute),
	}
	got := SelectOverpass(tiles)
	require.LessOrEqual(t, len(got), len(tiles))
	for _, tile := range got {
		d := tile.Acquired.Sub(got[0].Acquired)
		if d < 0 {
			d = -d
		}
		assert.Less(t, d, OverpassWindow)
	}
	assert.Equal(t, tiles[0], got[0])
}

func TestSortByCloudCover(t *testing.T) {
	t.Parallel()

	tiles := []Tile{
		tileAt("c", 5, 0),
		tileAt("b", 1, time.Hour),
		tileAt("a", 1, time.Hour),
		tileAt("z", 1, 0),
	}
	SortByCloudCover(tiles)
	assert.Equal(t, []string{"z", "a", "b", "c"}, Mosaic{Tiles: tiles}.TileIDs())
}

func TestParseDateRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name:      "dates",
			in:        "2023-01-01/2023-05-30",
			wantStart: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2023, 5, 30, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "timestamps",
			in:        "2023-01-01T06:00:00Z/2023-01-02T06:00:00Z",
			wantStart: time.Date(2023, 1, 1, 6, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2023, 1, 2, 6, 0, 0, 0, time.UTC),
		},
		{name: "single date", in: "2023-01-01", wantErr: true},
		{name: "bad date", in: "2023-13-01/2023-12-01", wantErr: true},
		{name: "reversed", in: "2023-05-01/2023-01-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDateRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, got.Start)
			assert.Equal(t, tt.wantEnd, got.End)
		})
	}
}

func TestDateRange_String(t *testing.T) {
	t.Parallel()

	dr, err := ParseDateRange("2023-01-01/2023-05-30")
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01T00:00:00Z/2023-05-30T23:59:59Z", dr.String())
}

func TestTile_Asset(t *testing.T) {
	t.Parallel()

	tile := Tile{Assets: map[string]string{"B04": "https://x/B04.tif", "B08": ""}}
	href, ok := tile.Asset("B04")
	assert.True(t, ok)
	assert.Equal(t, "https://x/B04.tif", href)
	_, ok = tile.Asset("B08")
	assert.False(t, ok)
	_, ok = tile.Asset("B11")
	assert.False(t, ok)
}

func TestBBox_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, BBox{74.1, 31.3, 74.6, 31.7}.Valid())
	assert.False(t, BBox{74.6, 31.3, 74.1, 31.7}.Valid())
	assert.False(t, BBox{}.Valid())
}
