// Package supervise owns the lifecycle of one service's underlying process:
// start, stop, forced stop and status. How the process actually runs is
// delegated to a Hook.
package supervise

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"stackd/internal/registry"
)

// Info is a read-only snapshot of a supervisor's bookkeeping.
type Info struct {
	Name     string
	State    State
	PID      int
	Since    time.Time
	LastErr  string
	Restarts uint64
}

// Supervisor tracks the state machine for one service. State is written
// only through its transition methods, under the supervisor's lock.
type Supervisor struct {
	svc  *registry.Service
	hook Hook
	log  zerolog.Logger
	// Delay between stop and re-start during recovery restarts. Constant:
	// the sliding window already bounds restart storms.
	bo backoff.BackOff

	mu       sync.Mutex
	state    State
	pid      int
	since    time.Time
	lastErr  string
	restarts uint64
	wantRun  bool
}

// New builds a supervisor for svc in StateStopped.
func New(svc *registry.Service, hook Hook, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		svc:   svc,
		hook:  hook,
		log:   log.With().Str("service", svc.Name).Logger(),
		bo:    backoff.NewConstantBackOff(svc.Restart.Backoff),
		state: StateStopped,
		since: time.Now(),
	}
}

// Service returns the immutable declaration this supervisor runs.
func (s *Supervisor) Service() *registry.Service { return s.svc }

// Status returns the current state. Safe for concurrent use.
func (s *Supervisor) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the supervisor's bookkeeping.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Name:     s.svc.Name,
		State:    s.state,
		PID:      s.pid,
		Since:    s.since,
		LastErr:  s.lastErr,
		Restarts: s.restarts,
	}
}

// WantRun reports whether the service is supposed to be running, i.e. it
// was started and not explicitly stopped since.
func (s *Supervisor) WantRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wantRun
}

// Start brings the service up. Idempotent: starting an already-running
// service is a no-op that returns nil without invoking the hook.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning, StateStarting, StateRestarting:
		s.mu.Unlock()
		return nil
	}
	s.setLocked(StateStarting, "")
	s.wantRun = true
	s.mu.Unlock()

	return s.runStartHook(ctx)
}

// runStartHook invokes the hook with the service's start timeout and
// finishes the Starting transition.
func (s *Supervisor) runStartHook(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.svc.StartTimeout)
	defer cancel()

	pid, err := s.hook.Start(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.setLocked(StateStopped, err.Error())
		s.log.Error().Err(err).Msg("start failed")
		return fmt.Errorf("start %s: %w", s.svc.Name, err)
	}
	s.pid = pid
	s.setLocked(StateRunning, "")
	s.log.Info().Int("pid", pid).Msg("service running")
	return nil
}

// Stop brings the service down, forcing termination if the hook does not
// confirm exit within the stop grace period. Idempotent; always ends in
// StateStopped. Also the manual path out of StateFailed.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.wantRun = false
		s.mu.Unlock()
		return nil
	}
	s.wantRun = false
	s.mu.Unlock()

	err := s.stopProcess(ctx)

	s.mu.Lock()
	s.pid = 0
	if err != nil {
		s.setLocked(StateStopped, err.Error())
	} else {
		s.setLocked(StateStopped, "")
	}
	s.mu.Unlock()
	return err
}

// stopProcess runs the graceful-then-forced termination sequence.
func (s *Supervisor) stopProcess(ctx context.Context) error {
	gctx, cancel := context.WithTimeout(ctx, s.svc.StopGrace)
	defer cancel()
	if err := s.hook.Stop(gctx); err != nil {
		s.log.Warn().Err(err).Msg("graceful stop failed; forcing")
		if kerr := s.hook.Kill(); kerr != nil {
			return fmt.Errorf("stop %s: %w", s.svc.Name, kerr)
		}
	}
	return nil
}

// MarkUnhealthy transitions Running -> Unhealthy. Returns false if the
// service was not running.
func (s *Supervisor) MarkUnhealthy(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return false
	}
	s.setLocked(StateUnhealthy, reason)
	s.log.Warn().Str("reason", reason).Msg("service unhealthy")
	return true
}

// MarkFailed parks the service in the terminal StateFailed. Automatic
// recovery stops; probing continues for observability.
func (s *Supervisor) MarkFailed(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(StateFailed, reason)
	s.log.Error().Str("reason", reason).Msg("restart limit exceeded; service failed")
}

// Restart performs one recovery cycle: stop, backoff delay, start. The
// caller (the service's own monitor loop) guarantees at most one restart
// is in flight per service.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	s.setLocked(StateRestarting, s.lastErr)
	s.mu.Unlock()
	s.log.Info().Msg("restarting service")

	if err := s.stopProcess(ctx); err != nil {
		s.log.Warn().Err(err).Msg("stop during restart failed")
	}
	s.mu.Lock()
	s.pid = 0
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		s.mu.Lock()
		s.setLocked(StateStopped, ctx.Err().Error())
		s.mu.Unlock()
		return ctx.Err()
	case <-time.After(s.bo.NextBackOff()):
	}

	s.mu.Lock()
	s.setLocked(StateStarting, "")
	s.mu.Unlock()
	if err := s.runStartHook(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
	s.bo.Reset()
	return nil
}

// setLocked records a state transition. Call with s.mu held.
func (s *Supervisor) setLocked(st State, lastErr string) {
	if s.state != st {
		s.since = time.Now()
	}
	s.state = st
	if lastErr != "" {
		s.lastErr = lastErr
	} else if st == StateRunning {
		s.lastErr = ""
	}
}
