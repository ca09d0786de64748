package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stackd/internal/registry"
	"stackd/internal/supervise"
)

// depPoll is how often StartAll re-checks a dependency's state while
// waiting for it to report running.
const depPoll = 50 * time.Millisecond

// Orchestrator drives supervisors up and down in plan order.
type Orchestrator struct {
	sups map[string]*supervise.Supervisor
	log  zerolog.Logger
}

// NewOrchestrator wires the orchestrator to one supervisor per service.
func NewOrchestrator(sups map[string]*supervise.Supervisor, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{sups: sups, log: log}
}

// StartAll walks the plan forward. Each service starts only after all of
// its dependencies report running. On any failure the remaining plan is
// abandoned, already-started services are stopped in reverse order, and a
// StartError is returned. No partial startup is ever left behind.
func (o *Orchestrator) StartAll(ctx context.Context, order []*registry.Service) error {
	started := make([]*registry.Service, 0, len(order))
	for _, svc := range order {
		if err := o.waitForDeps(ctx, svc); err != nil {
			o.rollback(started)
			return &StartError{Service: svc.Name, Err: err}
		}
		o.log.Info().Str("service", svc.Name).Msg("starting")
		if err := o.sups[svc.Name].Start(ctx); err != nil {
			o.rollback(started)
			return &StartError{Service: svc.Name, Err: err}
		}
		started = append(started, svc)
	}
	return nil
}

// waitForDeps blocks until every dependency of svc is running, bounded by
// the service's start timeout.
func (o *Orchestrator) waitForDeps(ctx context.Context, svc *registry.Service) error {
	if len(svc.DependsOn) == 0 {
		return nil
	}
	deadline := time.Now().Add(svc.StartTimeout)
	for {
		pending := ""
		for _, dep := range svc.DependsOn {
			if o.sups[dep].Status() != supervise.StateRunning {
				pending = dep
				break
			}
		}
		if pending == "" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("dependency %s not running within %s", pending, svc.StartTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(depPoll):
		}
	}
}

// rollback stops already-started services in reverse order, best effort.
func (o *Orchestrator) rollback(started []*registry.Service) {
	for i := len(started) - 1; i >= 0; i-- {
		svc := started[i]
		o.log.Warn().Str("service", svc.Name).Msg("rolling back startup")
		// Fresh context: the startup ctx may already be canceled.
		ctx, cancel := context.WithTimeout(context.Background(), svc.StopGrace+5*time.Second)
		if err := o.sups[svc.Name].Stop(ctx); err != nil {
			o.log.Error().Err(err).Str("service", svc.Name).Msg("rollback stop failed")
		}
		cancel()
	}
}

// StopAll walks the reverse of the plan, stopping every service. Shutdown
// is best effort and total: individual failures are logged and collected
// but never abort the walk.
func (o *Orchestrator) StopAll(ctx context.Context, order []*registry.Service) error {
	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		svc := order[i]
		o.log.Info().Str("service", svc.Name).Msg("stopping")
		if err := o.sups[svc.Name].Stop(ctx); err != nil {
			o.log.Error().Err(err).Str("service", svc.Name).Msg("stop failed")
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name, err))
		}
	}
	return errors.Join(errs...)
}
