package luciditypes

import "time"

// Kind is the event type discriminant.
type Kind string

const (
	KindLLMGeneration  Kind = "llm_generation"
	KindFunctionCall   Kind = "function_call"
	KindErrorTraceback Kind = "error_traceback"
	KindGeneric        Kind = "generic"
)

// Event is the normalized envelope produced by the event builder and carried
// through the queue until dispatch. It is immutable once enqueued: nothing
// in the pipeline mutates Payload, ClientEventID, or the other identity
// fields after construction — only the bookkeeping counters (DeferCount,
// RetryCount) and NeedsBlob/Preview change in place as the item moves
// through the queue.
type Event struct {
	ClientEventID       string
	SessionID           string
	ClientParentEventID string

	Kind       Kind
	OccurredAt time.Time
	Duration   *float64

	Tags     []string
	Metadata map[string]any

	Payload Payload

	NeedsBlob bool
	Preview   map[string]any

	DeferCount int
	RetryCount int
}

// Payload is implemented by the four type-specific payload shapes. It is a
// closed set by design (§4.4): new event kinds add a new implementation and
// a new Kind constant, not an open extension point.
type Payload interface {
	payloadKind() Kind
}

// LLMGenerationPayload is the payload for Kind == KindLLMGeneration.
type LLMGenerationPayload struct {
	Request  LLMRequest
	Response LLMResponse
	Usage    Usage
	Status   string
	Error    string
	Misc     map[string]any
}

func (LLMGenerationPayload) payloadKind() Kind { return KindLLMGeneration }

// LLMRequest is the request half of an llm_generation payload.
type LLMRequest struct {
	Provider string
	Model    string
	Messages []map[string]any
	Params   map[string]any
}

// LLMResponse is the response half of an llm_generation payload.
type LLMResponse struct {
	Output    string
	Messages  []map[string]any
	ToolCalls []map[string]any
	Thinking  string
	Raw       map[string]any
}

// Usage is the token/cost accounting for an LLM generation, a direct rename
// of the teacher's TokenUsage/CacheUsage pairing.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	Cost             float64
}

// FunctionCallPayload is the payload for Kind == KindFunctionCall.
type FunctionCallPayload struct {
	FunctionName string
	Arguments    map[string]any
	ReturnValue  any
	Misc         map[string]any
}

func (FunctionCallPayload) payloadKind() Kind { return KindFunctionCall }

// ErrorTracebackPayload is the payload for Kind == KindErrorTraceback.
type ErrorTracebackPayload struct {
	Error     string
	Traceback string
	Misc      map[string]any
}

func (ErrorTracebackPayload) payloadKind() Kind { return KindErrorTraceback }

// GenericPayload is the payload for Kind == KindGeneric. Details accepts the
// "description" field name as an alias at the builder layer; by the time a
// GenericPayload exists, the alias has already been resolved.
type GenericPayload struct {
	Details string
	Misc    map[string]any
}

func (GenericPayload) payloadKind() Kind { return KindGeneric }
