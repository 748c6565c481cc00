// Package price resolves token mints to USD prices. The HTTP client talks
// to a Jupiter-compatible price endpoint; CachedLookup adapts it to the
// synchronous lookup the spam filter consumes.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Jupiter price endpoint.
const DefaultBaseURL = "https://lite-api.jup.ag/price/v2"

// Client fetches spot prices over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a price client. An empty baseURL uses the public
// endpoint.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type priceResponse struct {
	Data map[string]struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// Prices fetches USD prices for the given mints in one request. Mints the
// endpoint does not know are absent from the result; that is not an error.
func (c *Client) Prices(ctx context.Context, mints []string) (map[string]float64, error) {
	if len(mints) == 0 {
		return map[string]float64{}, nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid price endpoint %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("ids", strings.Join(mints, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("price endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}

	out := make(map[string]float64, len(parsed.Data))
	for mint, entry := range parsed.Data {
		if entry.Price == "" {
			continue
		}
		v, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil {
			c.logger.Warn("unparseable price, skipping", "mint", mint, "price", entry.Price)
			continue
		}
		out[mint] = v
	}
	return out, nil
}

// Price fetches the USD price of a single mint. The boolean is false when
// the endpoint does not price the mint.
func (c *Client) Price(ctx context.Context, mint string) (float64, bool, error) {
	prices, err := c.Prices(ctx, []string{mint})
	if err != nil {
		return 0, false, err
	}
	v, ok := prices[mint]
	return v, ok, nil
}
