package lucidic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lucidicai/lucidic-go/internal/ambient"
	"github.com/lucidicai/lucidic-go/internal/transporttest"
)

var errBoom = errors.New("boom")

func initForTest(t *testing.T, configure func(*Options)) (*transporttest.Server, func()) {
	t.Helper()
	srv := transporttest.New()

	autoEnd := false
	opts := Options{
		APIKey:  "test-key",
		AgentID: "agent-1",
		BaseURL: srv.URL,
		AutoEnd: &autoEnd,
	}
	if configure != nil {
		configure(&opts)
	}

	if err := Init(opts); err != nil {
		srv.Close()
		t.Fatalf("Init failed: %v", err)
	}

	return srv, func() {
		instanceMu.Lock()
		instance = nil
		instanceMu.Unlock()
		srv.Close()
	}
}

func TestCreateSessionThenCreateEventThenEndSession(t *testing.T) {
	srv, cleanup := initForTest(t, nil)
	defer cleanup()

	ctx := context.Background()
	sessionID, err := CreateSession(ctx, CreateSessionParams{Name: "my session"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a non-empty session id")
	}

	eventID, err := CreateEvent(ctx, "generic", CreateEventParams{
		SessionID: sessionID,
		Fields:    map[string]any{"details": "hello world"},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if eventID == "" {
		t.Fatal("expected a non-empty event id")
	}

	if err := EndSession(ctx, sessionID, true, "completed"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	events := srv.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event delivered by shutdown-time flush, got %d", len(events))
	}
}

func TestCreateEventUsesAmbientSessionWhenNotSpecified(t *testing.T) {
	srv, cleanup := initForTest(t, nil)
	defer cleanup()

	ctx := context.Background()
	sessionID, err := CreateSession(ctx, CreateSessionParams{Name: "ambient session"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// The test goroutine is not the main goroutine, so the session is bound
	// to it explicitly rather than relying on the process-global slot.
	unbind := BindSession(sessionID)
	eventID, err := CreateEvent(ctx, "generic", CreateEventParams{Fields: map[string]any{"details": "x"}})
	unbind()
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if eventID == "" {
		t.Fatal("expected event id")
	}

	if err := EndSession(ctx, sessionID, true, ""); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	if len(srv.Events()) != 1 {
		t.Fatalf("expected the event to be delivered under the ambient session, got %d events", len(srv.Events()))
	}
}

func TestTraceFuncEmitsFunctionCallAndErrorSiblingOnError(t *testing.T) {
	srv, cleanup := initForTest(t, nil)
	defer cleanup()

	ctx := context.Background()
	sessionID, err := CreateSession(ctx, CreateSessionParams{Name: "trace session"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ctx = WithSession(ctx, sessionID)

	_, err = TraceFunc(ctx, "doThing", map[string]any{"x": 1}, func(ctx context.Context) (any, error) {
		return nil, errBoom
	})
	if err != errBoom {
		t.Fatalf("expected errBoom to propagate, got %v", err)
	}

	if err := EndSession(context.Background(), sessionID, false, "test done"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	events := srv.Events()
	if len(events) != 2 {
		t.Fatalf("expected a function_call event plus an error_traceback sibling, got %d", len(events))
	}
}

func TestEndSessionWithNoAmbientSessionFails(t *testing.T) {
	_, cleanup := initForTest(t, nil)
	defer cleanup()

	err := EndSession(context.Background(), "", true, "")
	if err == nil {
		t.Fatal("expected an error when no session id is given and no ambient session is bound")
	}
}

func TestCreateEventMasksTextFieldsIncludingNested(t *testing.T) {
	srv, cleanup := initForTest(t, func(o *Options) {
		o.Mask = func(s string) string { return "[redacted]" }
	})
	defer cleanup()

	ctx := context.Background()
	sessionID, err := CreateSession(ctx, CreateSessionParams{Name: "masked session"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_, err = CreateEvent(ctx, "llm_generation", CreateEventParams{
		SessionID: sessionID,
		Fields: map[string]any{
			"request": map[string]any{
				"provider": "openai",
				"messages": []map[string]any{{"role": "user", "content": "my secret prompt"}},
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	if err := EndSession(ctx, sessionID, true, ""); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	events := srv.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(events))
	}
	payload, _ := events[0]["payload"].(map[string]any)
	request, _ := payload["request"].(map[string]any)
	if request["provider"] != "[redacted]" {
		t.Fatalf("expected request.provider masked, got %+v", request)
	}
	messages, _ := request["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %+v", messages)
	}
	msg, _ := messages[0].(map[string]any)
	if msg["content"] != "[redacted]" {
		t.Fatalf("expected nested message content masked, got %+v", msg)
	}
}

func TestBindSessionIsolatesFlowsAcrossGoroutines(t *testing.T) {
	_, cleanup := initForTest(t, nil)
	defer cleanup()

	unbind := BindSession("flow-a")
	defer unbind()

	done := make(chan string, 1)
	go func() {
		done <- ambient.ResolveSession(context.Background())
	}()

	select {
	case got := <-done:
		if got != "" {
			t.Fatalf("expected child goroutine to see no bound session, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
