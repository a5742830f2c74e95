package stac

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// tokenSkew renews tokens this long before they expire.
const tokenSkew = 5 * time.Minute

type sasToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"msft:expiry"`
}

// SignHref appends the collection's SAS token to href. Tokens are cached per
// collection until shortly before expiry.
func (c *httpClient) SignHref(ctx context.Context, collection, href string) (string, error) {
	if !c.sign || href == "" {
		return href, nil
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return href, nil
	}

	tok, err := c.token(ctx, collection)
	if err != nil {
		return "", err
	}
	sep := "?"
	if strings.Contains(href, "?") {
		sep = "&"
	}
	return href + sep + tok, nil
}

func (c *httpClient) token(ctx context.Context, collection string) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[collection]
	c.mu.Unlock()
	if ok && c.now().Add(tokenSkew).Before(cached.Expiry) {
		return cached.Token, nil
	}

	target := strings.TrimRight(c.tokenURL, "/") + "/" + collection
	raw, err := c.do(ctx, "token", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return "", eris.Wrapf(err, "stac: fetch token for %s", collection)
	}

	var tok sasToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", eris.Wrap(err, "stac: parse token response")
	}
	if tok.Token == "" {
		return "", eris.Errorf("stac: empty token for %s", collection)
	}

	c.mu.Lock()
	c.tokens[collection] = tok
	c.mu.Unlock()
	return tok.Token, nil
}

// Download fetches href and returns the body.
func (c *httpClient) Download(ctx context.Context, href string) ([]byte, error) {
	data, err := c.do(ctx, "download", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	})
	if err != nil {
		return nil, eris.Wrap(err, "stac: download asset")
	}
	return data, nil
}
