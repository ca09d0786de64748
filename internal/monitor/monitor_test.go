package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stackd/internal/config"
	"stackd/internal/probe"
	"stackd/internal/recovery"
	"stackd/internal/registry"
	"stackd/internal/supervise"
	"stackd/pkg/types"
)

// loopHook counts hook invocations for monitor loop tests.
type loopHook struct {
	mu     sync.Mutex
	starts int
	stops  int
	alive  bool
}

func (h *loopHook) Start(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	h.alive = true
	return 100 + h.starts, nil
}

func (h *loopHook) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.alive = false
	return nil
}

func (h *loopHook) Kill() error { return nil }

func (h *loopHook) IsAlive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

func (h *loopHook) startCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.starts
}

// funcProber delegates to a function; targets map to service probe URLs.
type funcProber struct {
	fn func(ctx context.Context, target string) probe.Result
}

func (p funcProber) Check(ctx context.Context, target string, timeout time.Duration) probe.Result {
	return p.fn(ctx, target)
}

func healthyResult() probe.Result {
	return probe.Result{Status: probe.StatusHealthy, CheckedAt: time.Now()}
}

func unhealthyResult() probe.Result {
	return probe.Result{Status: probe.StatusUnhealthy, CheckedAt: time.Now(), Detail: "probe target responded 500"}
}

func buildMonitor(t *testing.T, svcConfigs []config.ServiceConfig, prober probe.Prober, pub Publisher) (*Monitor, map[string]*loopHook) {
	t.Helper()
	cfg := config.Config{Services: svcConfigs}
	cfg.ApplyDefaults()
	reg, err := registry.Load(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	hooks := make(map[string]*loopHook)
	sups := make(map[string]*supervise.Supervisor)
	for _, svc := range reg.Services() {
		h := &loopHook{}
		hooks[svc.Name] = h
		sups[svc.Name] = supervise.New(svc, h, zerolog.Nop())
	}
	return New(reg, sups, prober, recovery.NewPolicy(), pub, zerolog.Nop()), hooks
}

func fastService(name string, maxAttempts int) config.ServiceConfig {
	return config.ServiceConfig{
		Name:    name,
		Command: []string{"/usr/local/bin/" + name},
		Probe: config.ProbeConfig{
			URL:      "http://" + name + ".local/health",
			Interval: config.Duration(5 * time.Millisecond),
			Timeout:  config.Duration(5 * time.Millisecond),
		},
		Restart: config.RestartConfig{
			MaxAttempts: maxAttempts,
			Window:      config.Duration(time.Minute),
			Backoff:     config.Duration(time.Millisecond),
		},
		StartTimeout: config.Duration(time.Second),
		StopGrace:    config.Duration(50 * time.Millisecond),
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCrashLoopProtection(t *testing.T) {
	pub := NewMemoryPublisher()
	m, hooks := buildMonitor(t, []config.ServiceConfig{fastService("model-a", 3)},
		funcProber{fn: func(ctx context.Context, target string) probe.Result { return unhealthyResult() }}, pub)

	sup := m.sups["model-a"]
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	waitFor(t, 5*time.Second, "service to fail", func() bool {
		return sup.Status() == supervise.StateFailed
	})
	cancel()
	<-done

	// Initial start plus exactly max_attempts automatic restarts.
	if got := hooks["model-a"].startCount(); got != 4 {
		t.Fatalf("start hook invoked %d times, want 4", got)
	}
	var restarts, limits int
	for _, e := range pub.Events() {
		switch e.Type {
		case EventRestart:
			restarts++
		case EventRestartLimitReached:
			limits++
			if e.ID == "" {
				t.Fatal("alert event missing id")
			}
		}
	}
	if restarts != 3 || limits != 1 {
		t.Fatalf("events: restarts=%d limits=%d", restarts, limits)
	}
}

func TestFailedServiceKeepsBeingProbed(t *testing.T) {
	var probes atomic.Int64
	m, _ := buildMonitor(t, []config.ServiceConfig{fastService("model-a", 1)},
		funcProber{fn: func(ctx context.Context, target string) probe.Result {
			probes.Add(1)
			return unhealthyResult()
		}}, nil)

	sup := m.sups["model-a"]
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	waitFor(t, 5*time.Second, "service to fail", func() bool {
		return sup.Status() == supervise.StateFailed
	})
	at := probes.Load()
	waitFor(t, time.Second, "probing to continue after failure", func() bool {
		return probes.Load() > at+2
	})
	cancel()
	<-done
	if sup.Status() != supervise.StateFailed {
		t.Fatalf("state = %s", sup.Status())
	}
}

func TestLoopsProgressIndependently(t *testing.T) {
	var bProbes atomic.Int64
	prober := funcProber{fn: func(ctx context.Context, target string) probe.Result {
		if target == "http://stuck.local/health" {
			// Simulates a probe target that never answers.
			<-ctx.Done()
			return probe.Result{Status: probe.StatusProbeError, CheckedAt: time.Now(), Detail: ctx.Err().Error()}
		}
		bProbes.Add(1)
		return healthyResult()
	}}
	m, _ := buildMonitor(t, []config.ServiceConfig{
		fastService("stuck", 3),
		fastService("fine", 3),
	}, prober, nil)

	for _, name := range []string{"stuck", "fine"} {
		if err := m.sups[name].Start(context.Background()); err != nil {
			t.Fatalf("start %s: %v", name, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// "fine" must keep making probe progress while "stuck" hangs.
	waitFor(t, 5*time.Second, "independent probe progress", func() bool {
		return bProbes.Load() >= 5
	})
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunReturnsAfterCancel(t *testing.T) {
	m, _ := buildMonitor(t, []config.ServiceConfig{fastService("model-a", 3)},
		funcProber{fn: func(ctx context.Context, target string) probe.Result { return healthyResult() }}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestManualRestartClearsFailedAndWindow(t *testing.T) {
	m, hooks := buildMonitor(t, []config.ServiceConfig{fastService("model-a", 1)},
		funcProber{fn: func(ctx context.Context, target string) probe.Result { return unhealthyResult() }}, nil)

	sup := m.sups["model-a"]
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	waitFor(t, 5*time.Second, "service to fail", func() bool {
		return sup.Status() == supervise.StateFailed
	})
	cancel()
	<-done

	startsBefore := hooks["model-a"].startCount()
	if err := m.RestartService(context.Background(), "model-a"); err != nil {
		t.Fatalf("manual restart: %v", err)
	}
	if sup.Status() != supervise.StateRunning {
		t.Fatalf("state after manual restart = %s", sup.Status())
	}
	if hooks["model-a"].startCount() != startsBefore+1 {
		t.Fatal("manual restart did not invoke the start hook")
	}
	// Window was reset: status must report zero in-window failures.
	snap := m.Snapshot()
	if snap.Services[0].WindowFailures != 0 {
		t.Fatalf("window failures = %d", snap.Services[0].WindowFailures)
	}
}

func TestRestartUnknownService(t *testing.T) {
	m, _ := buildMonitor(t, []config.ServiceConfig{fastService("model-a", 3)},
		funcProber{fn: func(ctx context.Context, target string) probe.Result { return healthyResult() }}, nil)
	err := m.RestartService(context.Background(), "model-z")
	if err == nil || !IsUnknownService(err) {
		t.Fatalf("expected unknown service error, got %v", err)
	}
}

func TestSnapshotAndHealth(t *testing.T) {
	m, _ := buildMonitor(t, []config.ServiceConfig{
		fastService("storage", 3),
		fastService("gpu", 3),
		fastService("model-a", 1),
	}, funcProber{fn: func(ctx context.Context, target string) probe.Result {
		if target == "http://model-a.local/health" {
			return unhealthyResult()
		}
		return healthyResult()
	}}, nil)

	for _, name := range []string{"storage", "gpu", "model-a"} {
		if err := m.sups[name].Start(context.Background()); err != nil {
			t.Fatalf("start %s: %v", name, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	waitFor(t, 5*time.Second, "model-a to fail", func() bool {
		return m.sups["model-a"].Status() == supervise.StateFailed
	})
	cancel()
	<-done

	health := m.Health()
	if health.Status != types.HealthFailed {
		t.Fatalf("aggregate status = %s", health.Status)
	}
	if health.Running != 2 || health.Failed != 1 {
		t.Fatalf("health = %+v", health)
	}

	snap := m.Snapshot()
	if len(snap.Services) != 3 {
		t.Fatalf("snapshot services = %d", len(snap.Services))
	}
	byName := map[string]types.ServiceStatus{}
	for _, s := range snap.Services {
		byName[s.Name] = s
	}
	if byName["storage"].State != string(supervise.StateRunning) {
		t.Fatalf("storage state = %s", byName["storage"].State)
	}
	if byName["model-a"].State != string(supervise.StateFailed) {
		t.Fatalf("model-a state = %s", byName["model-a"].State)
	}
	if byName["model-a"].LastProbe != string(probe.StatusUnhealthy) {
		t.Fatalf("model-a last probe = %s", byName["model-a"].LastProbe)
	}
	// Declaration order preserved.
	if snap.Services[0].Name != "storage" || snap.Services[2].Name != "model-a" {
		t.Fatalf("snapshot order: %v", []string{snap.Services[0].Name, snap.Services[1].Name, snap.Services[2].Name})
	}
}
