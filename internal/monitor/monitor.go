// Package monitor runs one independent supervision loop per service,
// wiring probe results through the recovery policy into restart actions.
// A stuck probe on one service never delays probing of another.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stackd/internal/probe"
	"stackd/internal/recovery"
	"stackd/internal/registry"
	"stackd/internal/supervise"
	"stackd/pkg/types"
)

// unknownServiceError signals a restart request for an undeclared name so
// the HTTP layer can return 404.
type unknownServiceError struct{ name string }

func (e unknownServiceError) Error() string { return "unknown service: " + e.name }

// IsUnknownService reports whether err names an undeclared service.
func IsUnknownService(err error) bool {
	_, ok := err.(unknownServiceError)
	return ok
}

// Monitor coordinates the per-service supervision loops.
type Monitor struct {
	reg    *registry.Registry
	sups   map[string]*supervise.Supervisor
	prober probe.Prober
	policy *recovery.Policy
	pub    Publisher
	log    zerolog.Logger

	startedAt time.Time

	mu        sync.Mutex
	lastProbe map[string]probe.Result
	// actionMu serializes restart actions per service: the service's own
	// loop and a manual restart must never overlap.
	actionMu map[string]*sync.Mutex
}

// New wires a monitor over the given supervisors.
func New(reg *registry.Registry, sups map[string]*supervise.Supervisor, prober probe.Prober, policy *recovery.Policy, pub Publisher, log zerolog.Logger) *Monitor {
	if pub == nil {
		pub = NoopPublisher{}
	}
	actionMu := make(map[string]*sync.Mutex, reg.Len())
	for _, svc := range reg.Services() {
		actionMu[svc.Name] = &sync.Mutex{}
	}
	return &Monitor{
		reg:       reg,
		sups:      sups,
		prober:    prober,
		policy:    policy,
		pub:       pub,
		log:       log,
		startedAt: time.Now(),
		lastProbe: make(map[string]probe.Result, reg.Len()),
		actionMu:  actionMu,
	}
}

// Run launches one loop per service and blocks until ctx is canceled and
// every loop has exited.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, svc := range m.reg.Services() {
		wg.Add(1)
		go func(svc *registry.Service) {
			defer wg.Done()
			m.loop(ctx, svc, m.sups[svc.Name])
		}(svc)
	}
	wg.Wait()
	m.log.Info().Msg("all supervision loops exited")
}

// loop is the supervision cycle for one service: sleep, probe, act.
func (m *Monitor) loop(ctx context.Context, svc *registry.Service, sup *supervise.Supervisor) {
	log := m.log.With().Str("service", svc.Name).Logger()
	timer := time.NewTimer(svc.Probe.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("supervision loop exiting")
			return
		case <-timer.C:
		}

		start := time.Now()
		res := m.prober.Check(ctx, svc.Probe.URL, svc.Probe.Timeout)
		probeDuration.WithLabelValues(svc.Name).Observe(time.Since(start).Seconds())
		probesTotal.WithLabelValues(svc.Name, string(res.Status)).Inc()
		m.recordProbe(svc.Name, res)

		if ctx.Err() == nil {
			m.observe(ctx, svc, sup, res, log)
		}
		setStateGauge(svc.Name, sup.Status())
		timer.Reset(svc.Probe.Interval)
	}
}

// observe routes one probe result through the recovery policy.
func (m *Monitor) observe(ctx context.Context, svc *registry.Service, sup *supervise.Supervisor, res probe.Result, log zerolog.Logger) {
	state := sup.Status()

	if res.Status == probe.StatusHealthy {
		if state == supervise.StateFailed {
			// Someone may have revived the process by hand; the state
			// machine still requires an explicit reset.
			log.Debug().Msg("failed service answered probe; manual restart required to clear")
		}
		return
	}

	// ProbeError usually means the process is gone; Unhealthy means it
	// answered and said it's broken. Logged distinctly for diagnosis.
	if res.Status == probe.StatusProbeError {
		log.Warn().Str("detail", res.Detail).Msg("probe target unreachable")
	} else {
		log.Warn().Str("detail", res.Detail).Msg("probe target unhealthy")
	}

	switch state {
	case supervise.StateFailed:
		return // observability only; no more automatic restarts
	case supervise.StateStarting, supervise.StateRestarting:
		return // transition already in flight
	case supervise.StateStopped:
		if !sup.WantRun() {
			return // intentionally down
		}
		// Crashed during a previous recovery attempt; keep recovering.
	case supervise.StateRunning:
		sup.MarkUnhealthy(res.Detail)
	}

	switch m.policy.Evaluate(svc, res) {
	case recovery.ActionRestart:
		mu := m.actionMu[svc.Name]
		mu.Lock()
		defer mu.Unlock()
		restartsTotal.WithLabelValues(svc.Name, "auto").Inc()
		m.pub.Publish(newEvent(EventRestart, svc.Name, "restarting after "+string(res.Status)))
		if err := sup.Restart(ctx); err != nil {
			log.Error().Err(err).Msg("recovery restart failed")
		}
	case recovery.ActionMarkFailed:
		sup.MarkFailed("restart limit exceeded: " + res.Detail)
		m.pub.Publish(newEvent(EventRestartLimitReached, svc.Name,
			fmt.Sprintf("%d failures within %s; automatic recovery disabled", svc.Restart.MaxAttempts+1, svc.Restart.Window)))
	}
}

func (m *Monitor) recordProbe(name string, res probe.Result) {
	m.mu.Lock()
	m.lastProbe[name] = res
	m.mu.Unlock()
}

// RestartService is the manual override: it resets the service's failure
// window and performs a stop/start cycle, clearing StateFailed.
func (m *Monitor) RestartService(ctx context.Context, name string) error {
	svc, ok := m.reg.Lookup(name)
	if !ok {
		return unknownServiceError{name: name}
	}
	mu := m.actionMu[name]
	mu.Lock()
	defer mu.Unlock()

	m.policy.Reset(name)
	sup := m.sups[name]
	restartsTotal.WithLabelValues(name, "manual").Inc()
	m.pub.Publish(newEvent(EventManualRestart, name, "manual restart requested"))

	if err := sup.Stop(ctx); err != nil {
		m.log.Warn().Err(err).Str("service", name).Msg("stop during manual restart failed")
	}
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("manual restart of %s: %w", svc.Name, err)
	}
	setStateGauge(name, sup.Status())
	return nil
}

// Snapshot returns a point-in-time view of every service, in declaration
// order. Reads are lock-free per service and tolerant of being momentarily
// stale.
func (m *Monitor) Snapshot() types.StatusResponse {
	services := m.reg.Services()
	out := types.StatusResponse{
		Services:       make([]types.ServiceStatus, 0, len(services)),
		UptimeSeconds:  int64(time.Since(m.startedAt).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	for _, svc := range services {
		info := m.sups[svc.Name].Info()
		st := types.ServiceStatus{
			Name:           svc.Name,
			State:          string(info.State),
			PID:            info.PID,
			LastError:      info.LastErr,
			Restarts:       info.Restarts,
			WindowFailures: m.policy.WindowCount(svc.Name, svc.Restart.Window),
			SinceUnix:      info.Since.Unix(),
		}
		m.mu.Lock()
		if res, ok := m.lastProbe[svc.Name]; ok {
			st.LastProbe = string(res.Status)
			st.LastProbeUnix = res.CheckedAt.Unix()
		}
		m.mu.Unlock()
		out.Services = append(out.Services, st)
	}
	return out
}

// Health aggregates per-service states into one answer for operators:
// running services are healthy, unhealthy/restarting means recovery is in
// progress, failed means a human is needed.
func (m *Monitor) Health() types.HealthResponse {
	resp := types.HealthResponse{Status: types.HealthOK}
	for _, svc := range m.reg.Services() {
		switch m.sups[svc.Name].Status() {
		case supervise.StateRunning:
			resp.Running++
		case supervise.StateUnhealthy, supervise.StateRestarting:
			resp.Unhealthy++
		case supervise.StateFailed:
			resp.Failed++
		default:
			resp.Stopped++
		}
	}
	if resp.Failed > 0 {
		resp.Status = types.HealthFailed
	} else if resp.Unhealthy > 0 {
		resp.Status = types.HealthDegraded
	}
	return resp
}
