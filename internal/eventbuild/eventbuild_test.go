package eventbuild

import (
	"testing"
	"time"

	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
)

func TestBuildAssignsFreshClientEventID(t *testing.T) {
	a, err := Build(Params{SessionID: "s1", Kind: luciditypes.KindGeneric, Fields: map[string]any{"details": "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Build(Params{SessionID: "s1", Kind: luciditypes.KindGeneric, Fields: map[string]any{"details": "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ClientEventID == "" || a.ClientEventID == b.ClientEventID {
		t.Fatalf("expected distinct non-empty client event ids, got %q and %q", a.ClientEventID, b.ClientEventID)
	}
}

func TestBuildGenericAcceptsDescriptionAlias(t *testing.T) {
	ev, err := Build(Params{Kind: luciditypes.KindGeneric, Fields: map[string]any{"description": "hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := ev.Payload.(luciditypes.GenericPayload)
	if payload.Details != "hello" {
		t.Fatalf("expected description alias to populate Details, got %q", payload.Details)
	}
}

func TestBuildLLMGenerationUnknownKeysLandInMisc(t *testing.T) {
	ev, err := Build(Params{
		Kind: luciditypes.KindLLMGeneration,
		Fields: map[string]any{
			"request": map[string]any{"provider": "openai", "model": "gpt-4"},
			"status":  "success",
			"extra_field": "surprise",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := ev.Payload.(luciditypes.LLMGenerationPayload)
	if payload.Request.Provider != "openai" || payload.Request.Model != "gpt-4" {
		t.Fatalf("unexpected request: %+v", payload.Request)
	}
	if payload.Misc["extra_field"] != "surprise" {
		t.Fatalf("expected unknown key in misc, got %+v", payload.Misc)
	}
}

func TestBuildFunctionCallFields(t *testing.T) {
	ev, err := Build(Params{
		Kind: luciditypes.KindFunctionCall,
		Fields: map[string]any{
			"function_name": "fetch_weather",
			"arguments":     map[string]any{"city": "nyc"},
			"return_value":  72,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := ev.Payload.(luciditypes.FunctionCallPayload)
	if payload.FunctionName != "fetch_weather" {
		t.Fatalf("unexpected function name: %q", payload.FunctionName)
	}
	if payload.ReturnValue != 72 {
		t.Fatalf("unexpected return value: %v", payload.ReturnValue)
	}
}

func TestBuildUnknownKindFails(t *testing.T) {
	_, err := Build(Params{Kind: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestBuildStampsNaiveTimestampWithLocalOffset(t *testing.T) {
	naive := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev, err := Build(Params{Kind: luciditypes.KindGeneric, OccurredAt: naive, Fields: map[string]any{"details": "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.OccurredAt.Location() != time.Local {
		t.Fatalf("expected naive timestamp to be stamped with local offset, got %v", ev.OccurredAt.Location())
	}
}
