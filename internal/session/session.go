// Package session implements session creation and termination against the
// backend (spec.md §4.6): a thin wrapper over internal/transport plus a
// bounded candidate-id cache for idempotent creation.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lucidicai/lucidic-go/internal/transport"
	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
)

const candidateCacheSize = 500

// Manager creates and ends sessions. It holds no per-session event state —
// that belongs to each session's own Queue — only the candidate→real-id
// cache and the transport client.
type Manager struct {
	client    *transport.Client
	agentID   string
	candidates *candidateLRU
}

func NewManager(client *transport.Client, agentID string) *Manager {
	return &Manager{
		client:     client,
		agentID:    agentID,
		candidates: newCandidateLRU(candidateCacheSize),
	}
}

// CreateParams mirrors the sessions endpoint's create/continue request body.
type CreateParams struct {
	CandidateID   string
	Name          string
	Task          string
	Tags          []string
	ExperimentID  string
	DatasetItemID string
	Rubrics       []string
	ProductionMonitoring bool
	AutoEnd       bool
}

// Create posts to the sessions endpoint and returns the server-assigned
// session. If CandidateID was seen before, the cached real id is returned
// without a new POST, making repeated calls with the same candidate
// idempotent (spec.md §4.6).
func (m *Manager) Create(ctx context.Context, params CreateParams) (*luciditypes.Session, error) {
	if params.CandidateID != "" {
		if realID, ok := m.candidates.get(params.CandidateID); ok {
			return &luciditypes.Session{
				ID:          realID,
				CandidateID: params.CandidateID,
				Name:        params.Name,
				Task:        params.Task,
				Tags:        params.Tags,
				Status:      luciditypes.SessionLive,
				AutoEnd:     params.AutoEnd,
			}, nil
		}
	}

	body := map[string]any{
		"agent_id":     m.agentID,
		"session_name": params.Name,
	}
	if params.CandidateID != "" {
		body["session_id"] = params.CandidateID
	}
	if params.Task != "" {
		body["task"] = params.Task
	}
	if len(params.Tags) > 0 {
		body["tags"] = params.Tags
	}
	if params.ExperimentID != "" {
		body["experiment_id"] = params.ExperimentID
	}
	if params.DatasetItemID != "" {
		body["dataset_item_id"] = params.DatasetItemID
	}
	if len(params.Rubrics) > 0 {
		body["rubrics"] = params.Rubrics
	}
	body["production_monitoring"] = params.ProductionMonitoring

	respBody, err := m.client.Do(ctx, "POST", "initsession", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("session: malformed initsession response: %w", err)
	}

	if params.CandidateID != "" {
		m.candidates.put(params.CandidateID, resp.SessionID)
	}

	return &luciditypes.Session{
		ID:          resp.SessionID,
		CandidateID: params.CandidateID,
		Name:        params.Name,
		Task:        params.Task,
		Tags:        params.Tags,
		Status:      luciditypes.SessionLive,
		AutoEnd:     params.AutoEnd,
	}, nil
}

// End posts a finalization for sessionID. Callers are expected not to emit
// further events for it afterward; the SDK does not enforce this
// server-side (spec.md §4.6 ordering invariant).
func (m *Manager) End(ctx context.Context, sessionID string, params luciditypes.EndParams) error {
	body := map[string]any{
		"session_id":  sessionID,
		"is_finished": true,
	}
	body["is_successful"] = params.Success
	if params.Reason != "" {
		body["is_successful_reason"] = params.Reason
	}
	if params.Eval != nil {
		body["session_eval"] = *params.Eval
	}

	_, err := m.client.Do(ctx, "PUT", "updatesession", body)
	return err
}
