package registry

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	ErrDuplicateID     = errors.New("duplicate monitor id")
	ErrMissingID       = errors.New("missing monitor id")
	ErrUnknownType     = errors.New("unknown monitor type")
	ErrBadSchedule     = errors.New("malformed schedule")
	ErrBadTarget       = errors.New("invalid target")
	ErrNonPositive     = errors.New("value must be positive")
	ErrBadThreshold    = errors.New("threshold must not be negative")
	ErrUnknownMonitor  = errors.New("unknown monitor")
	ErrEmptyConfigPath = errors.New("empty monitors file path")
)

// ConfigError carries every problem found while validating a configuration.
type ConfigError struct {
	err error
}

func (e *ConfigError) Error() string {
	errs := multierr.Errors(e.err)
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("config: %d problem(s): %s", len(errs), strings.Join(msgs, "; "))
}

func (e *ConfigError) Errors() []error { return multierr.Errors(e.err) }

func (e *ConfigError) Unwrap() []error { return multierr.Errors(e.err) }

func fieldErr(id, field string, err error) error {
	if id == "" {
		return fmt.Errorf("%s: %w", field, err)
	}
	return fmt.Errorf("monitor %q: %s: %w", id, field, err)
}
