package plan

import (
	"errors"
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle, naming its members in walk order.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Members, " -> ")
}

// IsCycleError reports whether err is a dependency cycle.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// StartError reports that a service failed to reach running during
// orchestrated startup. The remaining plan is aborted and everything
// already started is rolled back.
type StartError struct {
	Service string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("startup aborted at %s: %v", e.Service, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// IsStartError reports whether err is a partial-startup failure.
func IsStartError(err error) bool {
	var se *StartError
	return errors.As(err, &se)
}
