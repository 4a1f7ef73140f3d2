package resolver

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every error caused by how resolvers were wired
// rather than by the request.
var ErrConfiguration = errors.New("resolver configuration error")

// ConfigurationError reports a resolver that cannot run as configured.
type ConfigurationError struct {
	Op  string
	Msg string
}

func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErrorf(op, format string, args ...interface{}) error {
	return &ConfigurationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// MissingLoaderError is returned when a related field resolves without a
// loader registry in the context, or the registry has no loader for Model.
type MissingLoaderError struct {
	Namespace string
	Model     string
}

func (e *MissingLoaderError) Error() string {
	return fmt.Sprintf("no loader for model %s in context namespace %q", e.Model, e.Namespace)
}

func (e *MissingLoaderError) Is(target error) bool {
	return target == ErrConfiguration
}

// TooDeepError is returned when a selection nests relations deeper than the
// configured limit.
type TooDeepError struct {
	Limit int
	Depth int
}

func (e *TooDeepError) Error() string {
	return fmt.Sprintf("relation nesting depth %d exceeds limit %d", e.Depth, e.Limit)
}
