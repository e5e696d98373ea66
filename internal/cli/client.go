package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tickerclub/internal/auth"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) CreateGame(ctx context.Context, accessToken, title string, maxPlayers int, buyInCents int64, endsAt time.Time) (map[string]any, error) {
	body := map[string]any{
		"title":       title,
		"max_players": maxPlayers,
	}
	if buyInCents > 0 {
		body["buy_in_cents"] = buyInCents
	}
	if !endsAt.IsZero() {
		body["ends_at"] = endsAt
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games", accessToken, body, &out)
	return out, err
}

func (c *Client) ValidateCode(ctx context.Context, accessToken, code string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games/code/"+url.PathEscape(code), accessToken, nil, &out)
	return out, err
}

func (c *Client) JoinGame(ctx context.Context, accessToken, code string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/code/"+url.PathEscape(code)+"/join", accessToken, map[string]any{}, &out)
	return out, err
}

func (c *Client) Trade(ctx context.Context, accessToken string, gameID int64, symbol, side string, quantity, priceCents int64, note string) (map[string]any, error) {
	body := map[string]any{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
	}
	if priceCents > 0 {
		body["price_cents"] = priceCents
	}
	if note != "" {
		body["note"] = note
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/games/%d/trades", gameID), accessToken, body, &out)
	return out, err
}

func (c *Client) TradeHistory(ctx context.Context, accessToken string, gameID int64, limit int) (map[string]any, error) {
	path := fmt.Sprintf("/v1/games/%d/trades", gameID)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out)
	return out, err
}

func (c *Client) Portfolio(ctx context.Context, accessToken string, gameID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/games/%d/portfolio", gameID), accessToken, nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, accessToken string, gameID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/games/%d/leaderboard", gameID), accessToken, nil, &out)
	return out, err
}

func (c *Client) Feed(ctx context.Context, accessToken string, gameID int64, limit int) (map[string]any, error) {
	path := fmt.Sprintf("/v1/games/%d/feed", gameID)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
