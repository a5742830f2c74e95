// Package stac provides a small client for STAC API item search, asset
// download and Planetary Computer SAS signing.
package stac

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/sprawl-cli/internal/resilience"
)

const (
	// DefaultURL is the Planetary Computer STAC API root.
	DefaultURL = "https://planetarycomputer.microsoft.com/api/stac/v1"
	// DefaultTokenURL is the Planetary Computer SAS token endpoint.
	DefaultTokenURL = "https://planetarycomputer.microsoft.com/api/sas/v1/token"

	defaultPageSize = 100
	defaultMaxItems = 500
)

// Client defines the STAC operations used by the imagery pipeline.
type Client interface {
	// Search runs an item search, following next links until the result set
	// is exhausted or the item cap is reached.
	Search(ctx context.Context, req SearchRequest) ([]Item, error)

	// SignHref returns href with a SAS token appended when signing is
	// enabled, and href unchanged otherwise.
	SignHref(ctx context.Context, collection, href string) (string, error)

	// Download fetches an asset and returns its bytes.
	Download(ctx context.Context, href string) ([]byte, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second across search, signing
// and downloads.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithCircuitBreaker guards every request with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

// WithSigning enables SAS signing of asset hrefs against tokenURL.
func WithSigning(tokenURL string) Option {
	return func(c *httpClient) {
		c.sign = true
		if tokenURL != "" {
			c.tokenURL = tokenURL
		}
	}
}

// WithMaxItems caps the number of items returned by Search.
func WithMaxItems(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxItems = n
		}
	}
}

// WithPageSize sets the per-page limit sent with each search request.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

type httpClient struct {
	baseURL  string
	tokenURL string
	sign     bool
	maxItems int
	pageSize int

	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker

	mu     sync.Mutex
	tokens map[string]sasToken
	now    func() time.Time
}

// NewClient creates a STAC client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &httpClient{
		baseURL:  baseURL,
		tokenURL: DefaultTokenURL,
		maxItems: defaultMaxItems,
		pageSize: defaultPageSize,
		http:     &http.Client{Timeout: 2 * time.Minute},
		limiter:  rate.NewLimiter(10, 10),
		retry:    resilience.DefaultRetryConfig(),
		tokens:   make(map[string]sasToken),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}
