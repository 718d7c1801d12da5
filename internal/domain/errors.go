package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPrecondition  = errors.New("precondition violated")
	ErrService       = errors.New("extraction service failed")
	ErrParse         = errors.New("response could not be parsed")
	ErrConfiguration = errors.New("invalid configuration")
	ErrMergeConflict = errors.New("conflicting field value")
	ErrCostLimit     = errors.New("cost limit exceeded")
)

// ConfigurationError halts a run before any extraction is attempted.
type ConfigurationError struct {
	Reason string
}

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// IsKind reports whether err carries the given sentinel kind.
func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
