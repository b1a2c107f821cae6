package lucidic

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/lucidicai/lucidic-go/internal/ambient"
	"github.com/lucidicai/lucidic-go/internal/eventbuild"
	"github.com/lucidicai/lucidic-go/internal/logging"
	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
)

// CreateEventParams is the public surface's event creation request.
type CreateEventParams struct {
	// ClientEventID forces the built event's id instead of generating a
	// fresh one. TraceFunc uses this to build the deferred function_call
	// event with the same id it already bound as the body's ambient
	// parent; ordinary callers should leave this empty.
	ClientEventID       string
	SessionID           string // resolved from ambient context if empty
	ClientParentEventID string // resolved from ambient context if empty
	OccurredAt          time.Time
	Duration            *float64
	Tags                []string
	Metadata            map[string]any
	Fields              map[string]any
}

// CreateEvent builds, resolves session and parent, enqueues, and returns
// the client event id immediately — it never blocks on network I/O
// (spec.md §4.9, §5). On the hot path, failures never propagate when
// suppression is enabled: a freshly generated id is returned instead.
func CreateEvent(ctx context.Context, kind luciditypes.Kind, params CreateEventParams) (string, error) {
	s, err := current()
	if err != nil {
		return suppressOrFail(nil, err)
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = ambient.ResolveSession(ctx)
	}
	parentID := params.ClientParentEventID
	if parentID == "" {
		parentID = ambient.ResolveParent(ctx)
	}

	maskedFields := applyMasking(s, params.Fields)

	ev, err := eventbuild.Build(eventbuild.Params{
		ClientEventID:       params.ClientEventID,
		SessionID:           sessionID,
		ClientParentEventID: parentID,
		Kind:                kind,
		OccurredAt:          params.OccurredAt,
		Duration:            params.Duration,
		Tags:                params.Tags,
		Metadata:            params.Metadata,
		Fields:              maskedFields,
	})
	if err != nil {
		return suppressOrFail(s, err)
	}

	q := s.queueFor(sessionID)
	if q == nil {
		logging.Debug().Str("session_id", sessionID).Msg("create_event called with no active queue for this session")
		return ev.ClientEventID, nil
	}

	q.Enqueue(ev)
	return ev.ClientEventID, nil
}

// CreateErrorEvent is a convenience that formats err (and, if available, a
// stack trace) into an error_traceback event.
func CreateErrorEvent(ctx context.Context, err error, params CreateEventParams) (string, error) {
	fields := map[string]any{}
	for k, v := range params.Fields {
		fields[k] = v
	}
	fields["error"] = err.Error()
	if _, ok := fields["traceback"]; !ok {
		fields["traceback"] = string(debug.Stack())
	}
	params.Fields = fields

	return CreateEvent(ctx, luciditypes.KindErrorTraceback, params)
}

// applyMasking runs every user-visible text field through the configured
// redactor before the event builder ever sees it (spec.md §4.8: "every
// user-visible text field passed into the public surface"). It recurses
// into nested maps and slices (e.g. an llm_generation event's
// request.messages) so free-text content isn't limited to top-level
// fields; a no-op hook (the default) makes this a cheap passthrough copy.
func applyMasking(s *sdk, fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return fields
	}
	return maskValue(s, fields).(map[string]any)
}

func maskValue(s *sdk, v any) any {
	switch val := v.(type) {
	case string:
		return s.maskHook.Apply(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = maskValue(s, item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = maskValue(s, item).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = maskValue(s, item)
		}
		return out
	default:
		return v
	}
}

func suppressOrFail(s *sdk, err error) (string, error) {
	suppress := s != nil && s.cfg.SuppressErrors
	if suppress {
		logging.Error().Err(err).Msg("create_event failed with suppression enabled; returning placeholder id")
		return uuid.NewString(), nil
	}
	return "", err
}
