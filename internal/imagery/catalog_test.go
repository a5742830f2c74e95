package imagery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/internal/geotiff/geotifftest"
	"github.com/sells-group/sprawl-cli/internal/raster"
	"github.com/sells-group/sprawl-cli/pkg/stac"
)

type fakeSTAC struct {
	items     []stac.Item
	searchErr error
	gotReq    stac.SearchRequest
	files     map[string][]byte
	signed    []string
}

func (f *fakeSTAC) Search(_ context.Context, req stac.SearchRequest) ([]stac.Item, error) {
	f.gotReq = req
	return f.items, f.searchErr
}

func (f *fakeSTAC) SignHref(_ context.Context, _, href string) (string, error) {
	f.signed = append(f.signed, href)
	return href + "?sig=1", nil
}

func (f *fakeSTAC) Download(_ context.Context, href string) ([]byte, error) {
	data, ok := f.files[href]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestSTACCatalog_Search(t *testing.T) {
	acquired := time.Date(2023, 3, 1, 5, 40, 0, 0, time.UTC)
	fake := &fakeSTAC{items: []stac.Item{
		{
			ID: "cloudy", Collection: "sentinel-2-l2a",
			Properties: stac.Properties{Datetime: acquired, CloudCover: floatPtr(8), EPSG: intPtr(32643)},
			Assets:     map[string]stac.Asset{"B04": {Href: "https://x/cloudy/B04.tif"}},
		},
		{
			ID:         "clear",
			Properties: stac.Properties{Datetime: acquired, CloudCover: floatPtr(0.3), Code: "EPSG:32643"},
			Assets:     map[string]stac.Asset{"B04": {Href: "https://x/clear/B04.tif"}},
		},
		{ID: "no-date", Properties: stac.Properties{CloudCover: floatPtr(0)}},
		{ID: "odd-crs", Properties: stac.Properties{Datetime: acquired, EPSG: intPtr(2154)}},
	}}

	dr, err := ParseDateRange("2023-01-01/2023-05-30")
	require.NoError(t, err)

	cat := NewSTACCatalog(fake, "")
	tiles, err := cat.Search(context.Background(), SearchParams{
		BBox:      BBox{74.1, 31.3, 74.6, 31.7},
		DateRange: dr,
	})
	require.NoError(t, err)
	require.Len(t, tiles, 2)

	assert.Equal(t, "clear", tiles[0].ID)
	assert.Equal(t, DefaultCollection, tiles[0].Collection)
	assert.Equal(t, crs.CRS{EPSG: 32643}, tiles[0].CRS)
	assert.Equal(t, "cloudy", tiles[1].ID)
	assert.InDelta(t, 8, tiles[1].CloudCover, 1e-9)

	assert.Equal(t, []string{DefaultCollection}, fake.gotReq.Collections)
	assert.InDelta(t, DefaultMaxCloudCover, fake.gotReq.MaxCloudCover, 1e-9)
	assert.Equal(t, "2023-01-01T00:00:00Z/2023-05-30T23:59:59Z", fake.gotReq.Datetime)
}

func TestSTACCatalog_EmptyResult(t *testing.T) {
	cat := NewSTACCatalog(&fakeSTAC{}, "")
	tiles, err := cat.Search(context.Background(), SearchParams{BBox: BBox{0, 0, 1, 1}})
	require.NoError(t, err)
	assert.NotNil(t, tiles)
	assert.Empty(t, tiles)
}

func TestSTACCatalog_Errors(t *testing.T) {
	cat := NewSTACCatalog(&fakeSTAC{searchErr: errors.New("boom")}, "")
	_, err := cat.Search(context.Background(), SearchParams{BBox: BBox{0, 0, 1, 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = cat.Search(context.Background(), SearchParams{})
	assert.Error(t, err)
}

func testTIFF() []byte {
	return geotifftest.Encode(geotifftest.Options{
		Width: 2, Height: 2,
		Pixels: []uint16{100, 200, 300, 0},
		Left:   500000, Top: 3500000, PixelSize: 10,
		EPSG:   32643,
		Nodata: "0",
	})
}

func TestHTTPAssetOpener_Remote(t *testing.T) {
	fake := &fakeSTAC{files: map[string][]byte{"https://x/B04.tif?sig=1": testTIFF()}}
	opener := NewHTTPAssetOpener(fake)

	tile := Tile{ID: "t1", Collection: "s2", Assets: map[string]string{"B04": "https://x/B04.tif"}, CRS: crs.CRS{EPSG: 32643}}
	src, err := opener.OpenBand(context.Background(), tile, "B04")
	require.NoError(t, err)

	p := src.Profile()
	assert.Equal(t, raster.Shape{Height: 2, Width: 2}, p.Shape())
	assert.Equal(t, crs.CRS{EPSG: 32643}, p.CRS)
	assert.InDelta(t, 300, src.Value(1, 0), 1e-9)
	assert.True(t, isNaN(src.Value(1, 1)))
	assert.Equal(t, []string{"https://x/B04.tif"}, fake.signed)
}

func TestHTTPAssetOpener_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "B08.tif")
	require.NoError(t, os.WriteFile(path, testTIFF(), 0o600))

	fake := &fakeSTAC{}
	opener := NewHTTPAssetOpener(fake)
	tile := Tile{ID: "t1", Assets: map[string]string{"B08": "file://" + path}}

	src, err := opener.OpenBand(context.Background(), tile, "B08")
	require.NoError(t, err)
	assert.InDelta(t, 100, src.Value(0, 0), 1e-9)
	assert.Empty(t, fake.signed)
}

func TestHTTPAssetOpener_RejectsBarePaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "B08.tif")
	require.NoError(t, os.WriteFile(path, testTIFF(), 0o600))

	fake := &fakeSTAC{}
	opener := NewHTTPAssetOpener(fake)
	for _, href := range []string{path, "/etc/passwd", "s3://bucket/B08.tif", "../B08.tif"} {
		tile := Tile{ID: "t1", Assets: map[string]string{"B08": href}}
		_, err := opener.OpenBand(context.Background(), tile, "B08")
		require.Error(t, err, href)
		assert.Contains(t, err.Error(), "unsupported asset href")
	}
	assert.Empty(t, fake.signed)
}

func TestHTTPAssetOpener_Errors(t *testing.T) {
	opener := NewHTTPAssetOpener(&fakeSTAC{files: map[string][]byte{"https://x/bad.tif?sig=1": []byte("not a tiff")}})
	ctx := context.Background()

	_, err := opener.OpenBand(ctx, Tile{ID: "t"}, "B04")
	assert.Error(t, err)

	_, err = opener.OpenBand(ctx, Tile{ID: "t", Assets: map[string]string{"B04": "https://x/missing.tif"}}, "B04")
	assert.Error(t, err)

	_, err = opener.OpenBand(ctx, Tile{ID: "t", Assets: map[string]string{"B04": "https://x/bad.tif"}}, "B04")
	assert.Error(t, err)
}

func isNaN(v float64) bool { return v != v }
