// Package ctl is the HTTP client side of the management API, used by the
// stackd CLI subcommands to talk to a running supervisor.
package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"stackd/pkg/types"
)

// Client talks to a stackd management endpoint.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the given address. Accepts either a bare
// host:port or a full http:// URL.
func New(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
	}
}

// APIError is a non-2xx response decoded from the management API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("management API: %s (status %d)", e.Message, e.Status)
}

// IsNotFound reports whether err is a 404 from the management API.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

// Status fetches the per-service snapshot.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out, err
}

// Health fetches the aggregate health view.
func (c *Client) Health(ctx context.Context) (types.HealthResponse, error) {
	var out types.HealthResponse
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &out)
	return out, err
}

// Restart asks the supervisor to restart one service by name.
func (c *Client) Restart(ctx context.Context, name string) (types.RestartResponse, error) {
	var out types.RestartResponse
	err := c.do(ctx, http.MethodPost, "/v1/services/"+name+"/restart", nil, &out)
	return out, err
}

// Shutdown asks the supervisor to tear the whole stack down.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/shutdown", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeError turns a non-2xx response into an APIError, falling back to
// the raw body when it isn't the standard JSON error payload.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiResp types.ErrorResponse
	if err := json.Unmarshal(raw, &apiResp); err == nil && apiResp.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: apiResp.Error}
	}
	msg := string(bytes.TrimSpace(raw))
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
