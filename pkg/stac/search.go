package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sprawl-cli/internal/resilience"
)

// Search posts to /search and follows next links.
func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]Item, error) {
	body := c.searchBody(req)
	method := http.MethodPost
	target := strings.TrimRight(c.baseURL, "/") + "/search"

	var items []Item
	for page := 1; target != ""; page++ {
		fc, err := c.searchPage(ctx, method, target, body)
		if err != nil {
			return nil, eris.Wrapf(err, "stac: search page %d", page)
		}
		items = append(items, fc.Features...)
		zap.L().Debug("stac search page",
			zap.Int("page", page),
			zap.Int("features", len(fc.Features)),
			zap.Int("total", len(items)),
		)
		if len(items) >= c.maxItems {
			items = items[:c.maxItems]
			break
		}

		target = ""
		for _, l := range fc.Links {
			if l.Rel != "next" || l.Href == "" {
				continue
			}
			target = l.Href
			method = strings.ToUpper(l.Method)
			if method == "" {
				method = http.MethodGet
			}
			switch {
			case l.Body == nil:
				if method == http.MethodGet {
					body = nil
				}
			case l.Merge:
				if body == nil {
					body = make(map[string]any, len(l.Body))
				}
				for k, v := range l.Body {
					body[k] = v
				}
			default:
				body = l.Body
			}
			break
		}
		if len(fc.Features) == 0 {
			break
		}
	}
	return items, nil
}

func (c *httpClient) searchBody(req SearchRequest) map[string]any {
	body := map[string]any{
		"collections": req.Collections,
		"bbox":        req.BBox[:],
		"limit":       c.pageSize,
		"sortby": []map[string]string{
			{"field": "eo:cloud_cover", "direction": "asc"},
		},
	}
	if req.Datetime != "" {
		body["datetime"] = req.Datetime
	}
	if req.MaxCloudCover > 0 {
		body["query"] = map[string]any{
			"eo:cloud_cover": map[string]float64{"lt": req.MaxCloudCover},
		}
	}
	return body
}

func (c *httpClient) searchPage(ctx context.Context, method, target string, body map[string]any) (*featureCollection, error) {
	var payload []byte
	if method != http.MethodGet && body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, eris.Wrap(err, "stac: marshal search body")
		}
	}

	raw, err := c.do(ctx, "search", func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, r)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/geo+json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, eris.Wrap(err, "stac: parse search response")
	}
	return &fc, nil
}

// do sends the request built by build under rate limiting, retries and the
// circuit breaker, returning the response body of a 2xx response.
func (c *httpClient) do(ctx context.Context, op string, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("stac", op)
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "stac: rate limit")
			}
			req, err := build(ctx)
			if err != nil {
				return nil, eris.Wrapf(err, "stac: build %s request", op)
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, eris.Wrapf(err, "stac: %s request", op)
			}
			defer resp.Body.Close() //nolint:errcheck

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrapf(err, "stac: read %s response", op), 0)
			}
			if err := resilience.CheckStatus("stac", withoutQuery(req), resp.StatusCode); err != nil {
				return nil, err
			}
			return data, nil
		})
	})
}

// withoutQuery drops the query string so SAS tokens never reach logs.
func withoutQuery(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
