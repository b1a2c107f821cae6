package lucidic

import (
	"context"

	"github.com/lucidicai/lucidic-go/internal/ambient"
)

// WithSession returns a context carrying sessionID explicitly, for callers
// that thread a context through their call stack. Takes priority over
// BindSession and the process-global convenience.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return ambient.WithSession(ctx, sessionID)
}

// WithParent returns a context carrying parentEventID explicitly.
func WithParent(ctx context.Context, parentEventID string) context.Context {
	return ambient.WithParent(ctx, parentEventID)
}

// BindSession pushes sessionID onto the calling goroutine's ambient stack.
// The returned unbind func must run on every exit path; callers should
// `defer unbind()` immediately (spec.md §4.3's scoped-binder contract).
func BindSession(sessionID string) (unbind func()) {
	return ambient.BindSession(sessionID)
}

// BindParent pushes parentEventID onto the calling goroutine's ambient
// stack.
func BindParent(parentEventID string) (unbind func()) {
	return ambient.BindParent(parentEventID)
}

// Session runs fn with sessionID bound for the duration of the call,
// restoring the previous value on any exit path including a panic.
func Session(sessionID string, fn func()) {
	unbind := BindSession(sessionID)
	defer unbind()
	fn()
}

// Parent runs fn with parentEventID bound as the current parent for the
// duration of the call.
func Parent(parentEventID string, fn func()) {
	unbind := BindParent(parentEventID)
	defer unbind()
	fn()
}
