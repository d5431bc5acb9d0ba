// Package search is a thin client for the remote full-text product search
// service. It is a browse-path collaborator only; the pricing aggregator
// never calls it.
package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// Summary is one product match returned by the search service.
type Summary struct {
	VariantID string          `json:"variant_id"`
	StoreID   string          `json:"store_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

// Client queries the search service over HTTP. Outbound calls go through a
// circuit breaker so a degraded search backend cannot stall product browsing.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]Summary]
}

// NewClient creates a search Client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]Summary](gobreaker.Settings{
			Name:        "search",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Query runs a prefix/phrase query over product names and returns matching
// summaries.
func (c *Client) Query(ctx context.Context, q string) ([]Summary, error) {
	return c.breaker.Execute(func() ([]Summary, error) {
		return c.query(ctx, q)
	})
}

func (c *Client) query(ctx context.Context, q string) ([]Summary, error) {
	u := c.base + "/search?q=" + url.QueryEscape(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build search request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "query search service")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("search service returned %d", resp.StatusCode)
	}

	var out []Summary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}
	return out, nil
}
