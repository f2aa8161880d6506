// Package pensieve is an HTTP client for the Pensieve capture and
// indexing service.
package pensieve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/pensieve-search/internal/retry"
)

// DefaultBaseURL is where a locally running service listens
const DefaultBaseURL = "http://localhost:8839"

// Metadata keys the client interprets
const (
	metadataOCRKey = "ocr_result"
)

// APIError is a non-2xx response from the service
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pensieve %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// NotFound reports whether the service answered 404
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a 404 APIError
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// Record is one search hit as returned by the service
type Record struct {
	ID        int64     `json:"id"`
	Filepath  string    `json:"filepath"`
	CreatedAt time.Time `json:"-"`
}

// UnmarshalJSON accepts the service's timestamp formats, which may omit
// the zone
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64  `json:"id"`
		Filepath  string `json:"filepath"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	r.Filepath = raw.Filepath
	if raw.CreatedAt != "" {
		ts, err := ParseTimestamp(raw.CreatedAt)
		if err != nil {
			return err
		}
		r.CreatedAt = ts
	}
	return nil
}

// ServiceConfig is the subset of the service configuration that affects
// search routing
type ServiceConfig struct {
	PostgreSQLEnabled   bool `json:"postgresql_enabled"`
	VectorSearchEnabled bool `json:"vector_search_enabled"`
	VectorDimensions    int  `json:"vector_dimensions"`
	MaxVectors          int  `json:"max_vectors"`
}

// Options configures a Client
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Config
	Logger     zerolog.Logger
}

// Client talks to the capture service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	logger     zerolog.Logger
}

// NewClient creates a client; zero options fall back to defaults
func NewClient(opts Options) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid pensieve url %q: %w", base, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	cfg := opts.Retry
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig()
	}

	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: httpClient,
		retry:      cfg,
		logger:     opts.Logger,
	}, nil
}

// BaseURL returns the service root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes the service once, without retry
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "/api/health", nil)
	return err
}

// Config fetches the service configuration
func (c *Client) Config(ctx context.Context) (*ServiceConfig, error) {
	body, err := c.get(ctx, "/api/config", nil)
	if err != nil {
		return nil, err
	}
	var cfg ServiceConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// QueryByText runs a search. An empty mode lets the service choose.
func (c *Client) QueryByText(ctx context.Context, text, mode string, limit int) ([]Record, error) {
	params := url.Values{}
	params.Set("q", text)
	if mode != "" {
		params.Set("mode", mode)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, "/api/search", params)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body)
}

// decodeRecords accepts either a bare list or an object wrapping it
func decodeRecords(body []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var records []Record
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode search results: %w", err)
		}
		return records, nil
	}

	var wrapped struct {
		Results []Record `json:"results"`
		Data    []Record `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}
	return wrapped.Data, nil
}

var jsonNull = []byte("null")

// GetMetadata returns an entity's metadata. Non-string values are
// returned as their JSON text and null values are omitted.
func (c *Client) GetMetadata(ctx context.Context, id int64) (map[string]string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/api/entities/%d/metadata", id), nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode metadata for entity %d: %w", id, err)
	}

	meta := make(map[string]string, len(raw))
	for key, value := range raw {
		value = bytes.TrimSpace(value)
		if bytes.Equal(value, jsonNull) {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			meta[key] = s
			continue
		}
		meta[key] = string(value)
	}
	return meta, nil
}

// GetOCRText returns the flattened OCR text for an entity, or "" when it
// has none
func (c *Client) GetOCRText(ctx context.Context, id int64) (string, error) {
	meta, err := c.GetMetadata(ctx, id)
	if err != nil {
		return "", err
	}
	return FlattenOCR(meta[metadataOCRKey]), nil
}

// get performs a GET with retry on transport errors and 5xx responses
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return retry.Do(ctx, c.retry, func() ([]byte, error) {
		body, err := c.do(ctx, path, params)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return nil, retry.Permanent(err)
		}
		return body, err
	})
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pensieve %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("pensieve request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Method:     http.MethodGet,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
