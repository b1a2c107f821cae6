package lucidic

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
)

// TraceFunc wraps fn as a function_call event: it reserves the event's id
// on entry and binds it as the current parent for the duration of fn's
// body so nested events attach correctly, then builds and emits the single
// immutable function_call record once fn completes — with the return value
// on normal exit, or alongside a sibling error_traceback event (same parent
// as the function_call event) on error or panic. This is the scope-guard replacement for the original decorator
// (spec.md §9's redesign note, §4.9's @event decorator): unlike a
// decorator, TraceFunc's "before" and "after" are one defer, not two hook
// points, but the event itself is still a single record with no pre/post
// update protocol (spec.md §3's immutability invariant) — emission is just
// deferred until the body's outcome is known.
func TraceFunc(ctx context.Context, name string, args map[string]any, fn func(ctx context.Context) (any, error)) (result any, err error) {
	eventID := uuid.NewString()

	// The binding covers fn's body only: it is released before the
	// function_call event and its error sibling are emitted, so both resolve
	// the caller's parent rather than eventID.
	unbindParent := sync.OnceFunc(BindParent(eventID))
	defer unbindParent()
	childCtx := WithParent(ctx, eventID)

	defer func() {
		if r := recover(); r != nil {
			unbindParent()
			emitFunctionCall(ctx, eventID, name, args, nil, fmt.Errorf("panic: %v", r))
			CreateErrorEvent(ctx, fmt.Errorf("panic in traced function %q: %v", name, r), CreateEventParams{
				Fields: map[string]any{"traceback": string(debug.Stack())},
			})
			panic(r) // TraceFunc observes the panic, it does not swallow it
		}
	}()

	result, err = fn(childCtx)
	unbindParent()

	if err != nil {
		emitFunctionCall(ctx, eventID, name, args, result, err)
		CreateErrorEvent(ctx, err, CreateEventParams{})
		return result, err
	}

	emitFunctionCall(ctx, eventID, name, args, result, nil)
	return result, nil
}

func emitFunctionCall(ctx context.Context, eventID, name string, args map[string]any, result any, err error) {
	fields := map[string]any{
		"function_name": name,
		"arguments":     args,
		"return_value":  result,
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	CreateEvent(ctx, luciditypes.KindFunctionCall, CreateEventParams{
		ClientEventID: eventID,
		Fields:        fields,
	})
}
