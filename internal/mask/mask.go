// Package mask applies a caller-supplied redaction function to user-visible
// text fields before they reach the event builder (spec.md §4.8). A
// panicking redactor must never propagate: the field is replaced with a
// placeholder and the failure is logged, matching the worker-boundary
// recovery pattern used throughout the queue.
package mask

import (
	"github.com/lucidicai/lucidic-go/internal/logging"
)

const placeholder = "[redaction_failed]"

// Func is the caller-supplied redactor shape.
type Func func(string) string

// Hook wraps a Func so failures are absorbed rather than propagated.
type Hook struct {
	fn Func
}

// New wraps fn. A nil fn produces a no-op Hook (masking is optional).
func New(fn Func) *Hook {
	return &Hook{fn: fn}
}

// Apply runs the configured redactor over s, returning s unchanged if no
// redactor is configured, or the placeholder if the redactor panics.
func (h *Hook) Apply(s string) (result string) {
	if h == nil || h.fn == nil {
		return s
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("masking hook panicked, substituting placeholder")
			result = placeholder
		}
	}()

	return h.fn(s)
}
