package registry

import (
	"errors"
	"strings"
)

// ValidationError aggregates every violation found in a stack file.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid stack config: " + e.Violations[0]
	}
	return "invalid stack config:\n  - " + strings.Join(e.Violations, "\n  - ")
}

// IsValidationError reports whether err is a stack config validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
