package imagery

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sprawl-cli/internal/crs"
	"github.com/sells-group/sprawl-cli/pkg/stac"
)

// DefaultCollection is the Sentinel-2 Level-2A collection on Planetary Computer.
const DefaultCollection = "sentinel-2-l2a"

// STACCatalog adapts a stac.Client to Catalog.
type STACCatalog struct {
	client     stac.Client
	collection string
}

// NewSTACCatalog returns a Catalog searching collection through client.
func NewSTACCatalog(client stac.Client, collection string) *STACCatalog {
	if collection == "" {
		collection = DefaultCollection
	}
	return &STACCatalog{client: client, collection: collection}
}

// Search returns the matching tiles sorted by ascending cloud cover. Items
// without a datetime or with an unsupported projection are skipped.
func (c *STACCatalog) Search(ctx context.Context, p SearchParams) ([]Tile, error) {
	if !p.BBox.Valid() {
		return nil, eris.Errorf("imagery: invalid search bbox %v", p.BBox)
	}
	maxCloud := p.MaxCloudCover
	if maxCloud <= 0 {
		maxCloud = DefaultMaxCloudCover
	}

	items, err := c.client.Search(ctx, stac.SearchRequest{
		Collections:   []string{c.collection},
		BBox:          p.BBox,
		Datetime:      p.DateRange.String(),
		MaxCloudCover: maxCloud,
	})
	if err != nil {
		return nil, eris.Wrap(err, "imagery: catalog search")
	}

	tiles := make([]Tile, 0, len(items))
	for _, it := range items {
		t, err := c.tileFromItem(it)
		if err != nil {
			zap.L().Warn("skipping catalog item",
				zap.String("component", "catalog"),
				zap.String("item", it.ID),
				zap.Error(err),
			)
			continue
		}
		tiles = append(tiles, t)
	}
	SortByCloudCover(tiles)
	return tiles, nil
}

func (c *STACCatalog) tileFromItem(it stac.Item) (Tile, error) {
	if it.Properties.Datetime.IsZero() {
		return Tile{}, eris.New("imagery: item has no datetime")
	}
	t := Tile{
		ID:         it.ID,
		Collection: it.Collection,
		Acquired:   it.Properties.Datetime.UTC(),
		Assets:     make(map[string]string, len(it.Assets)),
	}
	if t.Collection == "" {
		t.Collection = c.collection
	}
	if it.Properties.CloudCover != nil {
		t.CloudCover = *it.Properties.CloudCover
	}
	if code := it.Properties.ProjectionEPSG(); code != 0 {
		projection, err := crs.FromEPSG(code)
		if err != nil {
			return Tile{}, err
		}
		t.CRS = projection
	}
	for name, a := range it.Assets {
		t.Assets[name] = a.Href
	}
	return t, nil
}
