package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client fetches quotes from the upstream market-data HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// Quote returns the current price for symbol in cents.
func (c *Client) Quote(ctx context.Context, symbol string) (int64, error) {
	u := c.baseURL + "/v1/quote?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("quote status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode quote: %w", err)
	}
	cents := centsFromDollars(out.Price)
	if cents <= 0 {
		return 0, fmt.Errorf("non-positive quote for %s", symbol)
	}
	return cents, nil
}

func centsFromDollars(v float64) int64 {
	if v <= 0 {
		return 0
	}
	return int64(v*100 + 0.5)
}
