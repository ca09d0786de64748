package recovery

import (
	"testing"
	"time"

	"stackd/internal/probe"
	"stackd/internal/registry"
)

func policyService(maxAttempts int, window time.Duration) *registry.Service {
	return &registry.Service{
		Name:    "model-a",
		Restart: registry.RestartSpec{MaxAttempts: maxAttempts, Window: window},
	}
}

// fakeClock lets tests walk the window deterministically.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func withClock(p *Policy, c *fakeClock) *Policy {
	p.now = c.now
	return p
}

func unhealthy() probe.Result {
	return probe.Result{Status: probe.StatusUnhealthy, Detail: "probe target responded 500"}
}

func probeError() probe.Result {
	return probe.Result{Status: probe.StatusProbeError, Detail: "connection refused"}
}

func TestHealthyNeverMutatesWindow(t *testing.T) {
	clock := newFakeClock()
	p := withClock(NewPolicy(), clock)
	svc := policyService(3, 5*time.Minute)

	if got := p.Evaluate(svc, probe.Result{Status: probe.StatusHealthy}); got != ActionNone {
		t.Fatalf("healthy -> %s", got)
	}
	if n := p.WindowCount(svc.Name, svc.Restart.Window); n != 0 {
		t.Fatalf("window count = %d", n)
	}
}

func TestRestartsWithinBudgetThenFailed(t *testing.T) {
	clock := newFakeClock()
	p := withClock(NewPolicy(), clock)
	svc := policyService(3, 5*time.Minute)

	// Exactly max_attempts restarts are granted.
	for i := 1; i <= 3; i++ {
		clock.advance(10 * time.Second)
		if got := p.Evaluate(svc, unhealthy()); got != ActionRestart {
			t.Fatalf("failure %d -> %s", i, got)
		}
	}
	// The (max_attempts+1)-th failure inside the window exhausts it.
	clock.advance(10 * time.Second)
	if got := p.Evaluate(svc, probeError()); got != ActionMarkFailed {
		t.Fatalf("failure 4 -> %s", got)
	}
}

func TestFailuresAgeOut(t *testing.T) {
	clock := newFakeClock()
	p := withClock(NewPolicy(), clock)
	svc := policyService(2, time.Minute)

	if got := p.Evaluate(svc, unhealthy()); got != ActionRestart {
		t.Fatalf("first failure -> %s", got)
	}
	if got := p.Evaluate(svc, unhealthy()); got != ActionRestart {
		t.Fatalf("second failure -> %s", got)
	}
	// After the window passes, the counter has drained.
	clock.advance(2 * time.Minute)
	if got := p.Evaluate(svc, unhealthy()); got != ActionRestart {
		t.Fatalf("failure after window -> %s", got)
	}
	if n := p.WindowCount(svc.Name, svc.Restart.Window); n != 1 {
		t.Fatalf("window count = %d", n)
	}
}

func TestHealthyBlipDoesNotResetWindow(t *testing.T) {
	clock := newFakeClock()
	p := withClock(NewPolicy(), clock)
	svc := policyService(2, 5*time.Minute)

	p.Evaluate(svc, unhealthy())
	p.Evaluate(svc, unhealthy())
	// A healthy observation between failures must not grant fresh budget:
	// a service flapping at the reset boundary would otherwise evade the
	// limiter.
	p.Evaluate(svc, probe.Result{Status: probe.StatusHealthy})
	clock.advance(time.Second)
	if got := p.Evaluate(svc, unhealthy()); got != ActionMarkFailed {
		t.Fatalf("third in-window failure -> %s", got)
	}
}

func TestResetRestoresBudget(t *testing.T) {
	clock := newFakeClock()
	p := withClock(NewPolicy(), clock)
	svc := policyService(1, 5*time.Minute)

	p.Evaluate(svc, unhealthy())
	if got := p.Evaluate(svc, unhealthy()); got != ActionMarkFailed {
		t.Fatalf("expected mark_failed, got %s", got)
	}
	p.Reset(svc.Name)
	if got := p.Evaluate(svc, unhealthy()); got != ActionRestart {
		t.Fatalf("after reset -> %s", got)
	}
}

func TestWindowsAreIndependentPerService(t *testing.T) {
	clock := newFakeClock()
	p := withClock(NewPolicy(), clock)
	a := policyService(1, 5*time.Minute)
	b := policyService(1, 5*time.Minute)
	b.Name = "model-b"

	p.Evaluate(a, unhealthy())
	if got := p.Evaluate(a, unhealthy()); got != ActionMarkFailed {
		t.Fatalf("a second failure -> %s", got)
	}
	if got := p.Evaluate(b, unhealthy()); got != ActionRestart {
		t.Fatalf("b first failure -> %s", got)
	}
}
