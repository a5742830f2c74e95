package imagery

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sprawl-cli/internal/geotiff"
	"github.com/sells-group/sprawl-cli/internal/raster"
	"github.com/sells-group/sprawl-cli/pkg/stac"
)

// HTTPAssetOpener downloads GeoTIFF assets through a stac.Client, signing
// hrefs first. Only file:// hrefs are read from local disk; any other
// non-http(s) href is rejected.
type HTTPAssetOpener struct {
	client stac.Client
}

// NewHTTPAssetOpener returns an AssetOpener backed by client.
func NewHTTPAssetOpener(client stac.Client) *HTTPAssetOpener {
	return &HTTPAssetOpener{client: client}
}

// OpenBand fetches and decodes the band asset of tile.
func (o *HTTPAssetOpener) OpenBand(ctx context.Context, tile Tile, band string) (raster.Source, error) {
	href, ok := tile.Asset(band)
	if !ok {
		return nil, eris.Errorf("imagery: tile %s has no %s asset", tile.ID, band)
	}

	data, err := o.read(ctx, tile, href)
	if err != nil {
		return nil, eris.Wrapf(err, "imagery: open %s/%s", tile.ID, band)
	}
	img, err := geotiff.Decode(data)
	if err != nil {
		return nil, eris.Wrapf(err, "imagery: decode %s/%s", tile.ID, band)
	}

	if p := img.Profile(); !tile.CRS.IsZero() && p.CRS != tile.CRS {
		zap.L().Debug("asset CRS differs from catalog",
			zap.String("tile", tile.ID),
			zap.Stringer("catalog_crs", tile.CRS),
			zap.Stringer("asset_crs", p.CRS),
		)
	}
	return img, nil
}

func (o *HTTPAssetOpener) read(ctx context.Context, tile Tile, href string) ([]byte, error) {
	if path, ok := strings.CutPrefix(href, "file://"); ok {
		return os.ReadFile(path)
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return nil, eris.Errorf("unsupported asset href %q", href)
	}
	signed, err := o.client.SignHref(ctx, tile.Collection, href)
	if err != nil {
		return nil, err
	}
	return o.client.Download(ctx, signed)
}
