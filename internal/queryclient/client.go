// Package queryclient talks to the SQL-Speak query service over HTTP.
package queryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"sqlspeak-console/internal/domain"
)

const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	// Timeout bounds each call when HTTPClient is nil. Zero leaves calls
	// bounded only by their context.
	Timeout time.Duration

	// RateLimitRPS > 0 throttles outbound calls with a token bucket.
	RateLimitRPS   float64
	RateLimitBurst int

	Logger *slog.Logger
}

// Client implements domain.QueryService.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a client for the query service at baseURL.
func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
		if opts.Timeout > 0 {
			httpClient.Timeout = opts.Timeout
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "queryclient"),
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// RunQuery submits a natural-language query.
func (c *Client) RunQuery(ctx context.Context, token string, req domain.QueryRequest) (*domain.QueryResult, error) {
	var result domain.QueryResult
	if err := c.do(ctx, http.MethodPost, "/query", token, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History returns the caller's query history, most recent first as the
// service orders it.
func (c *Client) History(ctx context.Context, token string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/history", token, nil, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

// Me returns the principal the service resolved from the token.
func (c *Client) Me(ctx context.Context, token string) (*domain.Principal, error) {
	var p domain.Principal
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Schema returns the table snapshot the service holds for a data source.
func (c *Client) Schema(ctx context.Context, token, dataSource string) (*domain.SchemaSnapshot, error) {
	body := map[string]string{"data_source": dataSource}
	var snap domain.SchemaSnapshot
	if err := c.do(ctx, http.MethodPost, "/schema", token, body, &snap); err != nil {
		return nil, err
	}
	if snap.DataSource == "" {
		snap.DataSource = dataSource
	}
	return &snap, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	op := method + " " + path
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit: %w", op, err)
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := domain.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = domain.NewID()
	}
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation belongs to the caller, not the network.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	c.logger.Debug("query service call",
		"op", op, "status", resp.StatusCode, "request_id", requestID, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		svcErr := &domain.ServiceError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
		c.logger.Warn("query service error", "op", op, "status", resp.StatusCode, "request_id", requestID, "message", svcErr.Message)
		return svcErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &domain.ServiceError{StatusCode: resp.StatusCode, Message: "Empty response from query service"}
		}
		return &domain.ServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("Invalid response from query service: %v", err)}
	}
	return nil
}

// errorMessage extracts the user-facing message of an error response. A
// string detail is used as is; structured details are kept as compact JSON.
func errorMessage(status int, body []byte) string {
	fallback := fmt.Sprintf("Request failed with %d", status)
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		if s == "" {
			return fallback
		}
		return s
	}
	if string(payload.Detail) == "null" {
		return fallback
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload.Detail); err != nil {
		return fallback
	}
	return buf.String()
}

var _ domain.QueryService = (*Client)(nil)
