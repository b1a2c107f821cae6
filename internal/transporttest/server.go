// Package transporttest provides an in-process fake backend for exercising
// internal/transport, internal/session, and internal/queue without a real
// network dependency, grounded on the teacher's citest/testutil fake-server
// harness (functional-option TestServer construction) but backed by a chi
// router and httptest.Server rather than a full process.
package transporttest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Server is a fake Lucidic backend. Each registered route returns a canned
// success body; WithEventFailures is the only option and makes POST /events
// fail. Paths with no registered route get the router's 404.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	events     []map[string]any
	sessions   map[string]map[string]any
	blobs      map[string][]byte
	failEvents int // number of subsequent POST /events calls to fail with 503
}

// Option configures a Server at construction time.
type Option func(*Server)

// New starts a fake backend listening on a local port.
func New(opts ...Option) *Server {
	s := &Server{
		sessions: make(map[string]map[string]any),
		blobs:    make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/verifyapikey", s.handleVerify)
	r.Post("/initsession", s.handleInitSession)
	r.Put("/updatesession", s.handleUpdateSession)
	r.Post("/events", s.handleEvents)
	r.Put("/blob/{id}", s.handleBlobUpload)
	r.Get("/getprompt", s.handleGetPrompt)

	s.Server = httptest.NewServer(r)
	return s
}

// WithEventFailures makes the next n POST /events calls return 503.
func WithEventFailures(n int) Option {
	return func(s *Server) { s.failEvents = n }
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"project": "test-project", "project_id": "proj-1"})
}

func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	json.NewDecoder(r.Body).Decode(&req)

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = req
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"session_id": id})
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	json.NewDecoder(r.Body).Decode(&req)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.failEvents > 0 {
		s.failEvents--
		s.mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	var req map[string]any
	json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.events = append(s.events, req)
	s.mu.Unlock()

	resp := map[string]any{}
	if needsBlob, _ := req["needs_blob"].(bool); needsBlob {
		id := uuid.NewString()
		resp["blob_url"] = s.URL + "/blob/" + id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBlobUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.blobs[id] = body
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompt_content": ""})
}

// Events returns a snapshot of every accepted event body, in arrival order.
func (s *Server) Events() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.events))
	copy(out, s.events)
	return out
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
