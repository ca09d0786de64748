package supervise

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"stackd/internal/probe"
	"stackd/internal/registry"
)

// readinessPoll is how often the exec hook re-probes a starting process.
const readinessPoll = 100 * time.Millisecond

// ExecHook launches a service's command as a child process and waits for
// its health endpoint to come up before reporting success.
type ExecHook struct {
	svc    *registry.Service
	prober probe.Prober
	log    zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	waitCh chan error
	stderr *bytes.Buffer
}

// NewExecHook builds the default process-control hook for svc.
func NewExecHook(svc *registry.Service, prober probe.Prober, log zerolog.Logger) *ExecHook {
	return &ExecHook{
		svc:    svc,
		prober: prober,
		log:    log.With().Str("service", svc.Name).Logger(),
	}
}

// Start spawns the command and polls the probe target until it reports
// healthy, the process exits early, or ctx expires.
func (h *ExecHook) Start(ctx context.Context) (int, error) {
	h.mu.Lock()
	if h.cmd != nil && h.alive() {
		pid := h.cmd.Process.Pid
		h.mu.Unlock()
		return pid, nil
	}
	h.mu.Unlock()

	cmd := exec.Command(h.svc.Command[0], h.svc.Command[1:]...)
	cmd.Dir = h.svc.Workdir
	if len(h.svc.Env) > 0 {
		env := os.Environ()
		for k, v := range h.svc.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	// Keep a stderr tail in memory; included in the error on failure.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", h.svc.Name, err)
	}
	pid := cmd.Process.Pid
	h.log.Info().Int("pid", pid).Strs("command", h.svc.Command).Msg("process started")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	h.mu.Lock()
	h.cmd = cmd
	h.waitCh = waitCh
	h.stderr = &stderr
	h.mu.Unlock()

	// Readiness wait with early-exit detection.
	for {
		select {
		case <-ctx.Done():
			h.reap()
			return 0, fmt.Errorf("%s not ready before deadline: %w", h.svc.Name, ctx.Err())
		case werr := <-waitCh:
			tail := stderr.String()
			if len(tail) > 4096 {
				tail = tail[len(tail)-4096:]
			}
			h.clear()
			if werr != nil {
				return 0, fmt.Errorf("%s exited early: %v; stderr tail: %s", h.svc.Name, werr, tail)
			}
			return 0, fmt.Errorf("%s exited before ready", h.svc.Name)
		default:
		}

		res := h.prober.Check(ctx, h.svc.Probe.URL, h.svc.Probe.Timeout)
		if res.Status == probe.StatusHealthy {
			h.log.Info().Int("pid", pid).Str("target", h.svc.Probe.URL).Msg("process ready")
			return pid, nil
		}

		select {
		case <-ctx.Done():
			h.reap()
			return 0, fmt.Errorf("%s not ready before deadline: %w", h.svc.Name, ctx.Err())
		case <-time.After(readinessPoll):
		}
	}
}

// Stop sends SIGTERM and waits for exit until ctx expires.
func (h *ExecHook) Stop(ctx context.Context) error {
	h.mu.Lock()
	cmd, waitCh := h.cmd, h.waitCh
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitCh:
		h.clear()
		h.log.Info().Int("pid", cmd.Process.Pid).Msg("process exited")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s did not exit within grace period: %w", h.svc.Name, ctx.Err())
	}
}

// Kill forces termination with SIGKILL.
func (h *ExecHook) Kill() error {
	h.mu.Lock()
	cmd, waitCh := h.cmd, h.waitCh
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	h.log.Warn().Int("pid", cmd.Process.Pid).Msg("force-killing process")
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", h.svc.Name, err)
	}
	if waitCh != nil {
		<-waitCh
	}
	h.clear()
	return nil
}

// IsAlive reports whether the child process is still running.
func (h *ExecHook) IsAlive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive()
}

// alive reports whether the wait goroutine has delivered an exit yet.
// Call with h.mu held.
func (h *ExecHook) alive() bool {
	if h.cmd == nil || h.cmd.Process == nil {
		return false
	}
	select {
	case err, ok := <-h.waitCh:
		if ok {
			// Exited while nobody was waiting; put the result back for
			// a concurrent Stop/Kill.
			h.waitCh <- err
		}
		return false
	default:
		return true
	}
}

// reap kills a process that failed to become ready so no orphan survives a
// failed Start.
func (h *ExecHook) reap() {
	h.mu.Lock()
	cmd, waitCh := h.cmd, h.waitCh
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-waitCh
	}
	h.clear()
}

func (h *ExecHook) clear() {
	h.mu.Lock()
	h.cmd = nil
	h.waitCh = nil
	h.stderr = nil
	h.mu.Unlock()
}
