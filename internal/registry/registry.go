// Package registry holds the declarative catalogue of supervised services.
// It is pure data plus validation; process state lives with the supervisors.
package registry

import (
	"fmt"
	"time"

	"stackd/internal/config"
)

// ProbeSpec is the resolved probe declaration for one service.
type ProbeSpec struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// RestartSpec is the resolved crash-loop policy for one service.
type RestartSpec struct {
	MaxAttempts int
	Window      time.Duration
	Backoff     time.Duration
}

// Service is one supervisable unit. Records are immutable after Load;
// runtime state is owned by the service's supervisor.
type Service struct {
	Name      string
	DependsOn []string
	Command   []string
	Workdir   string
	Env       map[string]string
	Probe     ProbeSpec
	Restart   RestartSpec

	StartTimeout time.Duration
	StopGrace    time.Duration

	// Index is the declaration position, used for deterministic planning.
	Index int
}

// Registry is the validated set of services, in declaration order.
type Registry struct {
	services []*Service
	byName   map[string]*Service
}

// Load validates cfg.Services and builds the registry. All violations are
// collected so operators can fix a bad stack file in one pass.
func Load(cfg config.Config) (*Registry, error) {
	var violations []string
	byName := make(map[string]*Service, len(cfg.Services))
	services := make([]*Service, 0, len(cfg.Services))

	if len(cfg.Services) == 0 {
		violations = append(violations, "no services declared")
	}

	for i, sc := range cfg.Services {
		if sc.Name == "" {
			violations = append(violations, fmt.Sprintf("service #%d: name is required", i))
			continue
		}
		if _, dup := byName[sc.Name]; dup {
			violations = append(violations, fmt.Sprintf("service %q: duplicate name", sc.Name))
			continue
		}
		if len(sc.Command) == 0 {
			violations = append(violations, fmt.Sprintf("service %q: command is required", sc.Name))
		}
		if sc.Probe.URL == "" {
			violations = append(violations, fmt.Sprintf("service %q: probe url is required", sc.Name))
		}
		if sc.Probe.Interval.Std() <= 0 {
			violations = append(violations, fmt.Sprintf("service %q: probe interval must be positive", sc.Name))
		}
		if sc.Probe.Timeout.Std() <= 0 {
			violations = append(violations, fmt.Sprintf("service %q: probe timeout must be positive", sc.Name))
		}
		if sc.Restart.MaxAttempts < 1 {
			violations = append(violations, fmt.Sprintf("service %q: restart max_attempts must be >= 1", sc.Name))
		}
		if sc.Restart.Window.Std() <= 0 {
			violations = append(violations, fmt.Sprintf("service %q: restart window must be positive", sc.Name))
		}
		if sc.StartTimeout.Std() <= 0 {
			violations = append(violations, fmt.Sprintf("service %q: start_timeout must be positive", sc.Name))
		}
		if sc.StopGrace.Std() <= 0 {
			violations = append(violations, fmt.Sprintf("service %q: stop_grace must be positive", sc.Name))
		}

		svc := &Service{
			Name:      sc.Name,
			DependsOn: append([]string(nil), sc.DependsOn...),
			Command:   append([]string(nil), sc.Command...),
			Workdir:   sc.Workdir,
			Env:       sc.Env,
			Probe: ProbeSpec{
				URL:      sc.Probe.URL,
				Interval: sc.Probe.Interval.Std(),
				Timeout:  sc.Probe.Timeout.Std(),
			},
			Restart: RestartSpec{
				MaxAttempts: sc.Restart.MaxAttempts,
				Window:      sc.Restart.Window.Std(),
				Backoff:     sc.Restart.Backoff.Std(),
			},
			StartTimeout: sc.StartTimeout.Std(),
			StopGrace:    sc.StopGrace.Std(),
			Index:        i,
		}
		byName[svc.Name] = svc
		services = append(services, svc)
	}

	// Dependency names can only be resolved once every declared name is known.
	for _, svc := range services {
		seen := make(map[string]bool, len(svc.DependsOn))
		for _, dep := range svc.DependsOn {
			if dep == svc.Name {
				violations = append(violations, fmt.Sprintf("service %q: depends on itself", svc.Name))
				continue
			}
			if seen[dep] {
				violations = append(violations, fmt.Sprintf("service %q: duplicate dependency %q", svc.Name, dep))
				continue
			}
			seen[dep] = true
			if _, ok := byName[dep]; !ok {
				violations = append(violations, fmt.Sprintf("service %q: unknown dependency %q", svc.Name, dep))
			}
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return &Registry{services: services, byName: byName}, nil
}

// Services returns the services in declaration order.
// The returned slice is a copy; the records themselves are shared.
func (r *Registry) Services() []*Service {
	out := make([]*Service, len(r.services))
	copy(out, r.services)
	return out
}

// Lookup returns the service with the given name, if declared.
func (r *Registry) Lookup(name string) (*Service, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Len reports the number of declared services.
func (r *Registry) Len() int { return len(r.services) }
