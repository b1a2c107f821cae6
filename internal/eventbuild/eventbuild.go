// Package eventbuild normalizes caller-supplied fields into the typed event
// envelope and payload shapes defined in pkg/luciditypes (spec.md §4.4). It
// performs no I/O and no masking: masking runs in the public surface before
// fields ever reach this package.
package eventbuild

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
)

// Params is the normalized input to Build: the envelope fields plus a
// type-specific bag of raw values (the caller's kwargs equivalent).
type Params struct {
	// ClientEventID overrides the freshly generated id when non-empty.
	// TraceFunc needs to reserve an id before a function body runs (so it
	// can bind that id as the child's current parent) and only build the
	// full event once the body completes; this lets it supply the id it
	// already handed out rather than generating a second, mismatched one.
	ClientEventID       string
	SessionID           string
	ClientParentEventID string
	Kind                luciditypes.Kind
	OccurredAt          time.Time // zero value means "now"
	Duration            *float64
	Tags                []string
	Metadata            map[string]any

	Fields map[string]any
}

// Build normalizes params into an Event. The returned event's
// ClientEventID is params.ClientEventID when that is non-empty, and a
// freshly generated UUID otherwise (spec.md §3: client-generated UUID,
// returned synchronously to the caller).
func Build(params Params) (*luciditypes.Event, error) {
	payload, err := buildPayload(params.Kind, params.Fields)
	if err != nil {
		return nil, err
	}

	occurredAt := params.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	if occurredAt.Location() == time.UTC || occurredAt.Location() == nil {
		// A naive instant (no explicit zone) is stamped with the local
		// offset, per spec.md §4.4.
		occurredAt = occurredAt.In(time.Local)
	}

	clientEventID := params.ClientEventID
	if clientEventID == "" {
		clientEventID = uuid.NewString()
	}

	return &luciditypes.Event{
		ClientEventID:       clientEventID,
		SessionID:           params.SessionID,
		ClientParentEventID: params.ClientParentEventID,
		Kind:                params.Kind,
		OccurredAt:          occurredAt,
		Duration:            params.Duration,
		Tags:                params.Tags,
		Metadata:            params.Metadata,
		Payload:             payload,
	}, nil
}

func buildPayload(kind luciditypes.Kind, fields map[string]any) (luciditypes.Payload, error) {
	switch kind {
	case luciditypes.KindLLMGeneration:
		return buildLLMGeneration(fields), nil
	case luciditypes.KindFunctionCall:
		return buildFunctionCall(fields), nil
	case luciditypes.KindErrorTraceback:
		return buildErrorTraceback(fields), nil
	case luciditypes.KindGeneric:
		return buildGeneric(fields), nil
	default:
		return nil, fmt.Errorf("eventbuild: unknown event kind %q", kind)
	}
}

func buildLLMGeneration(fields map[string]any) luciditypes.LLMGenerationPayload {
	misc := make(map[string]any)
	p := luciditypes.LLMGenerationPayload{Misc: misc}

	req := asMap(fields["request"])
	p.Request = luciditypes.LLMRequest{
		Provider: asString(req["provider"]),
		Model:    asString(req["model"]),
		Messages: asMapSlice(req["messages"]),
		Params:   asMap(req["params"]),
	}

	resp := asMap(fields["response"])
	p.Response = luciditypes.LLMResponse{
		Output:    asString(resp["output"]),
		Messages:  asMapSlice(resp["messages"]),
		ToolCalls: asMapSlice(resp["tool_calls"]),
		Thinking:  asString(resp["thinking"]),
		Raw:       asMap(resp["raw"]),
	}

	usage := asMap(fields["usage"])
	p.Usage = luciditypes.Usage{
		InputTokens:      asInt(usage["input_tokens"]),
		OutputTokens:     asInt(usage["output_tokens"]),
		CacheReadTokens:  asInt(asMap(usage["cache"])["read"]),
		CacheWriteTokens: asInt(asMap(usage["cache"])["write"]),
		Cost:             asFloat(usage["cost"]),
	}

	p.Status = asString(fields["status"])
	p.Error = asString(fields["error"])

	known := map[string]bool{"request": true, "response": true, "usage": true, "status": true, "error": true}
	collectMisc(misc, fields, known)
	return p
}

func buildFunctionCall(fields map[string]any) luciditypes.FunctionCallPayload {
	misc := make(map[string]any)
	p := luciditypes.FunctionCallPayload{
		FunctionName: asString(fields["function_name"]),
		Arguments:    asMap(fields["arguments"]),
		ReturnValue:  fields["return_value"],
		Misc:         misc,
	}
	known := map[string]bool{"function_name": true, "arguments": true, "return_value": true}
	collectMisc(misc, fields, known)
	return p
}

func buildErrorTraceback(fields map[string]any) luciditypes.ErrorTracebackPayload {
	misc := make(map[string]any)
	p := luciditypes.ErrorTracebackPayload{
		Error:     asString(fields["error"]),
		Traceback: asString(fields["traceback"]),
		Misc:      misc,
	}
	known := map[string]bool{"error": true, "traceback": true}
	collectMisc(misc, fields, known)
	return p
}

func buildGeneric(fields map[string]any) luciditypes.GenericPayload {
	misc := make(map[string]any)
	details := fields["details"]
	if details == nil {
		// "description" is accepted as an alias for "details".
		details = fields["description"]
	}
	p := luciditypes.GenericPayload{
		Details: asString(details),
		Misc:    misc,
	}
	known := map[string]bool{"details": true, "description": true}
	collectMisc(misc, fields, known)
	return p
}

func collectMisc(misc map[string]any, fields map[string]any, known map[string]bool) {
	for k, v := range fields {
		if !known[k] {
			misc[k] = v
		}
	}
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asMapSlice(v any) []map[string]any {
	if s, ok := v.([]map[string]any); ok {
		return s
	}
	return nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
