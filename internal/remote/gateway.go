// Package remote provides the gateway to the authoritative UrbanismoVerde
// backend: per-collection CRUD plus a cheap reachability probe. Every
// failure mode (network, auth, validation) collapses into a remote-tagged
// AppError with a message; callers never branch on subtype.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tecnicfitia/urbanismoverde/internal/errors"
)

// Row is one remote record: the entity id plus its opaque payload.
type Row struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Gateway abstracts the authoritative backend.
type Gateway interface {
	// Insert creates a record in a collection.
	Insert(ctx context.Context, collection string, payload json.RawMessage) error

	// Update replaces the record with the given id.
	Update(ctx context.Context, collection, id string, payload json.RawMessage) error

	// Delete removes the record with the given id.
	Delete(ctx context.Context, collection, id string) error

	// SelectAll fetches up to limit records from a collection.
	SelectAll(ctx context.Context, collection string, limit int) ([]Row, error)

	// Ping probes backend reachability.
	Ping(ctx context.Context) error
}

// Config holds REST gateway connection configuration.
type Config struct {
	BaseURL string        // e.g. https://api.urbanismoverde.es
	Token   string        // bearer token, optional
	Timeout time.Duration // per-call timeout, 0 means no timeout
}

// Client implements Gateway against the backend REST API.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new REST gateway client.
func NewClient(config *Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Insert creates a record in a collection.
func (c *Client) Insert(ctx context.Context, collection string, payload json.RawMessage) error {
	path := fmt.Sprintf("/api/v1/%s", url.PathEscape(collection))
	_, err := c.do(ctx, http.MethodPost, path, payload)
	return err
}

// Update replaces the record with the given id.
func (c *Client) Update(ctx context.Context, collection, id string, payload json.RawMessage) error {
	path := fmt.Sprintf("/api/v1/%s/%s", url.PathEscape(collection), url.PathEscape(id))
	_, err := c.do(ctx, http.MethodPut, path, payload)
	return err
}

// Delete removes the record with the given id.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	path := fmt.Sprintf("/api/v1/%s/%s", url.PathEscape(collection), url.PathEscape(id))
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// SelectAll fetches up to limit records from a collection.
func (c *Client) SelectAll(ctx context.Context, collection string, limit int) ([]Row, error) {
	path := fmt.Sprintf("/api/v1/%s", url.PathEscape(collection))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, errors.Wrap(errors.ErrRemote, "malformed select response", err)
	}
	return rows, nil
}

// Ping probes backend reachability via the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/v1/health", nil)
	return err
}

// do executes one request and maps every failure to a remote-tagged error.
func (c *Client) do(ctx context.Context, method, path string, payload json.RawMessage) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemote, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemoteNetwork, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemote, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := errors.ErrRemoteStatus
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = errors.ErrRemoteAuth
		}
		return nil, errors.New(code,
			fmt.Sprintf("%s %s returned status %d: %s", method, path, resp.StatusCode, truncate(data, 200)))
	}

	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
