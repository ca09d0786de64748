// Package recovery decides whether a failing service gets restarted or is
// parked as failed. The limiter is a sliding window of failure timestamps,
// mirroring systemd's StartLimitBurst/Interval: a healthy blip does not
// reset the counter, failures simply age out.
package recovery

import (
	"sync"
	"time"

	"stackd/internal/probe"
	"stackd/internal/registry"
)

// Action is the policy's verdict for one probe observation.
type Action int

const (
	// ActionNone: service is healthy, nothing to do.
	ActionNone Action = iota
	// ActionRestart: failure is within budget, restart the process.
	ActionRestart
	// ActionMarkFailed: the window is exhausted, stop restarting.
	ActionMarkFailed
)

func (a Action) String() string {
	switch a {
	case ActionRestart:
		return "restart"
	case ActionMarkFailed:
		return "mark_failed"
	default:
		return "none"
	}
}

// Policy holds one FailureWindow per service. Safe for concurrent use by
// independent monitor loops.
type Policy struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewPolicy() *Policy {
	return &Policy{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Evaluate records res against svc's window and returns the verdict.
// Healthy observations never mutate the window.
func (p *Policy) Evaluate(svc *registry.Service, res probe.Result) Action {
	if res.Status == probe.StatusHealthy {
		return ActionNone
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	cutoff := now.Add(-svc.Restart.Window)
	win := p.windows[svc.Name]

	// Prune entries older than the window, then record this failure.
	kept := win[:0]
	for _, ts := range win {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	p.windows[svc.Name] = kept

	if len(kept) > svc.Restart.MaxAttempts {
		return ActionMarkFailed
	}
	return ActionRestart
}

// Reset clears a service's window. Used by the manual restart override.
func (p *Policy) Reset(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.windows, name)
}

// WindowCount reports how many failures are currently inside the window,
// for status reporting.
func (p *Policy) WindowCount(name string, window time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-window)
	n := 0
	for _, ts := range p.windows[name] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
