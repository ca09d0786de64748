// Package plan resolves the dependency graph into a safe execution order
// and drives orchestrated startup and shutdown.
package plan

import (
	"stackd/internal/registry"
)

// Plan computes a topological start order over services using Kahn's
// algorithm. Ties among ready services are broken by declaration order, so
// plans are deterministic and reproducible. Returns a CycleError when the
// graph is not acyclic.
func Plan(services []*registry.Service) ([]*registry.Service, error) {
	dependents := make(map[string][]*registry.Service, len(services))
	indegree := make(map[string]int, len(services))
	for _, svc := range services {
		indegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc)
		}
	}

	order := make([]*registry.Service, 0, len(services))
	emitted := make(map[string]bool, len(services))
	for len(order) < len(services) {
		progressed := false
		// Scanning in declaration order gives the deterministic
		// tie-break among services whose dependencies are satisfied.
		for _, svc := range services {
			if emitted[svc.Name] || indegree[svc.Name] != 0 {
				continue
			}
			emitted[svc.Name] = true
			order = append(order, svc)
			for _, dep := range dependents[svc.Name] {
				indegree[dep.Name]--
			}
			progressed = true
		}
		if !progressed {
			return nil, &CycleError{Members: findCycle(services, emitted)}
		}
	}
	return order, nil
}

// findCycle walks the remaining (non-emitted) subgraph and extracts one
// concrete cycle to name in the error.
func findCycle(services []*registry.Service, emitted map[string]bool) []string {
	byName := make(map[string]*registry.Service, len(services))
	for _, svc := range services {
		byName[svc.Name] = svc
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(services))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = inStack
		stack = append(stack, name)
		for _, dep := range byName[name].DependsOn {
			if emitted[dep] {
				continue
			}
			switch state[dep] {
			case inStack:
				// Found the back edge; the cycle is the stack
				// suffix starting at dep.
				for i, n := range stack {
					if n == dep {
						return append([]string(nil), stack[i:]...)
					}
				}
			case unvisited:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, svc := range services {
		if emitted[svc.Name] || state[svc.Name] != unvisited {
			continue
		}
		stack = stack[:0]
		if cyc := visit(svc.Name); cyc != nil {
			return cyc
		}
	}
	return nil
}
