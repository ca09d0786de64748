// Package probe issues bounded-timeout liveness checks against the HTTP
// health endpoints the serving stack exposes.
package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Status is the tri-state outcome of a liveness check.
type Status string

const (
	// StatusHealthy: the target responded with a success status.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy: the target was reachable but responded with a
	// non-success status.
	StatusUnhealthy Status = "unhealthy"
	// StatusProbeError: the target could not be reached at all
	// (connection failure or timeout). Usually means the process is gone.
	StatusProbeError Status = "probe_error"
)

// Result is an immutable probe observation.
type Result struct {
	Status    Status
	CheckedAt time.Time
	// Detail carries a short diagnostic, e.g. the HTTP status or the
	// transport error.
	Detail string
}

// Prober checks a single target with a hard timeout.
type Prober interface {
	Check(ctx context.Context, target string, timeout time.Duration) Result
}

// HTTPProber probes liveness endpoints over HTTP.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber constructs a prober with sane connection pooling.
func NewHTTPProber() *HTTPProber {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	// Intentionally set Timeout=0 here: every Check call carries its own
	// context deadline.
	return &HTTPProber{client: &http.Client{Transport: tr, Timeout: 0}}
}

// Check issues one GET against target with a hard deadline.
func (p *HTTPProber) Check(ctx context.Context, target string, timeout time.Duration) Result {
	now := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Status: StatusProbeError, CheckedAt: now, Detail: err.Error()}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Status: StatusProbeError, CheckedAt: now, Detail: err.Error()}
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Status: StatusHealthy, CheckedAt: now, Detail: resp.Status}
	}
	return Result{
		Status:    StatusUnhealthy,
		CheckedAt: now,
		Detail:    fmt.Sprintf("probe target responded %s", resp.Status),
	}
}
