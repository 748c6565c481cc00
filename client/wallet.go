// Package client is the Go client for the soltrace HTTP API: wallet
// registration, classified history, and on-demand refresh.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Wallet is a tracked wallet as the service reports it.
type Wallet struct {
	Address      string        `json:"address"`
	Label        string        `json:"label,omitempty"`
	PollInterval time.Duration `json:"poll_interval"`
	LastPollTime *time.Time    `json:"last_poll_time,omitempty"`
	Status       string        `json:"status"` // active, paused, error
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Client talks to the soltrace wallet classification service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a service client. httpClient and logger may be nil.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// RegisterParams are the tunable fields of a wallet registration.
type RegisterParams struct {
	Label        string
	PollInterval time.Duration
}

// Register starts tracking a wallet and returns the created registration
// as the server stored it.
func (c *Client) Register(ctx context.Context, address string, params RegisterParams) (*Wallet, error) {
	body := map[string]string{
		"address":       address,
		"poll_interval": params.PollInterval.String(),
	}
	if params.Label != "" {
		body["label"] = params.Label
	}

	var created walletResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/wallets", body, &created, http.StatusCreated); err != nil {
		return nil, err
	}

	c.logger.Debug("wallet registered", "address", address, "poll_interval", params.PollInterval)
	return created.toWallet()
}

// Unregister stops tracking a wallet and deletes its polling schedule.
func (c *Client) Unregister(ctx context.Context, address string) error {
	path := "/api/v1/wallets/" + url.PathEscape(address)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, http.StatusNoContent); err != nil {
		return err
	}
	c.logger.Debug("wallet unregistered", "address", address)
	return nil
}

// Get retrieves one wallet's registration.
func (c *Client) Get(ctx context.Context, address string) (*Wallet, error) {
	var resp walletResponse
	path := "/api/v1/wallets/" + url.PathEscape(address)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.toWallet()
}

// List retrieves every registered wallet.
func (c *Client) List(ctx context.Context) ([]*Wallet, error) {
	var resp struct {
		Wallets []walletResponse `json:"wallets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/wallets", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}

	wallets := make([]*Wallet, len(resp.Wallets))
	for i, apiWallet := range resp.Wallets {
		wallet, err := apiWallet.toWallet()
		if err != nil {
			return nil, fmt.Errorf("failed to parse wallet %s: %w", apiWallet.Address, err)
		}
		wallets[i] = wallet
	}
	return wallets, nil
}

// do performs one API call: marshal body, send, check the expected status,
// decode into out. body and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, wantStatus int) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// walletResponse is the wire format for a wallet. The server renders
// poll_interval as a duration string (e.g. "30s").
type walletResponse struct {
	Address      string     `json:"address"`
	Label        string     `json:"label,omitempty"`
	PollInterval string     `json:"poll_interval"`
	LastPollTime *time.Time `json:"last_poll_time,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (r *walletResponse) toWallet() (*Wallet, error) {
	pollInterval, err := time.ParseDuration(r.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid poll_interval %q: %w", r.PollInterval, err)
	}
	return &Wallet{
		Address:      r.Address,
		Label:        r.Label,
		PollInterval: pollInterval,
		LastPollTime: r.LastPollTime,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// parseErrorResponse turns a non-2xx response into an error, preferring
// the server's error field when the body carries one.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("request failed: %s", errResp.Error)
}
