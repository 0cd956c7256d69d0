package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"clearquote/internal/models"
)

// Client talks to the remote ClearQuote backend. All dashboard operations
// that require real work (SQL generation, credential validation, data
// access) go through it.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a backend client for the given base URL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: transport, Timeout: timeout},
		logger:  logger.With("component", "backend"),
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchConfigStatus retrieves the backend's configuration health. The
// request carries cache-bypass headers so intermediaries never serve a stale
// verdict.
func (c *Client) FetchConfigStatus(ctx context.Context) (models.ConfigStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/config/status", nil)
	if err != nil {
		return models.ConfigStatus{}, &TransportError{Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	var status models.ConfigStatus
	if err := c.do(req, &status); err != nil {
		return models.ConfigStatus{}, err
	}
	return status, nil
}

// Query submits a natural-language question.
func (c *Client) Query(ctx context.Context, question string) (models.QueryResponse, error) {
	var resp models.QueryResponse
	err := c.post(ctx, "/api/query", models.QueryRequest{Question: question}, &resp)
	return resp, err
}

// FetchTables retrieves up to limit rows for each named table.
func (c *Client) FetchTables(ctx context.Context, tables []string, limit int) (models.TableFetchResponse, error) {
	var resp models.TableFetchResponse
	err := c.post(ctx, "/api/data/fetch", models.TableFetchRequest{Tables: tables, Limit: limit}, &resp)
	return resp, err
}

// SetAPIKey stores a new Gemini API key on the backend.
func (c *Client) SetAPIKey(ctx context.Context, key string) (models.SettingsResponse, error) {
	var resp models.SettingsResponse
	err := c.post(ctx, "/api/config/api-key", models.APIKeyRequest{APIKey: key}, &resp)
	return resp, err
}

// SetDBURL stores a new database connection string on the backend.
func (c *Client) SetDBURL(ctx context.Context, dbURL string) (models.SettingsResponse, error) {
	var resp models.SettingsResponse
	err := c.post(ctx, "/api/config/db-url", models.DBURLRequest{DBURL: dbURL}, &resp)
	return resp, err
}

// ValidateAPIKey asks the backend to check a candidate key without storing
// it.
func (c *Client) ValidateAPIKey(ctx context.Context, key string) (models.ValidationResult, error) {
	var resp models.ValidationResult
	err := c.post(ctx, "/api/config/validate-api-key", models.APIKeyRequest{APIKey: key}, &resp)
	return resp, err
}

// ValidateDBURL asks the backend to check a candidate connection string
// without storing it.
func (c *Client) ValidateDBURL(ctx context.Context, dbURL string) (models.ValidationResult, error) {
	var resp models.ValidationResult
	err := c.post(ctx, "/api/config/validate-db-url", models.DBURLRequest{DBURL: dbURL}, &resp)
	return resp, err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}
