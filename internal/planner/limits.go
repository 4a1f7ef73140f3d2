package planner

import "fmt"

// DefaultListLimit is the page size used when neither the request nor the
// configuration sets one.
const DefaultListLimit = 100

// CompileConfig carries the static limits applied while compiling arguments.
type CompileConfig struct {
	// MaxLimit caps the page size. Zero means DefaultListLimit.
	MaxLimit int
}

// window returns the effective page size ceiling.
func (c CompileConfig) window() int {
	if c.MaxLimit > 0 {
		return c.MaxLimit
	}
	return DefaultListLimit
}

// ClampLimit returns the page size to use for a requested size. A zero request
// means "not given" and yields the full window.
func (c CompileConfig) ClampLimit(requested int) int {
	max := c.window()
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

func validateLimitOffset(limit, offset int) error {
	if limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	return nil
}
