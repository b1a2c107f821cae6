// Package luciditypes holds the data model shared across the SDK: sessions,
// events, and their nested attribute structs. Types here carry no behavior
// beyond small accessors; construction and validation live in the packages
// that own the corresponding lifecycle (internal/session, internal/eventbuild).
package luciditypes

import "time"

// SessionStatus describes where a session sits in its lifecycle.
type SessionStatus string

const (
	SessionLive  SessionStatus = "live"
	SessionEnded SessionStatus = "ended"
)

// Session is the client-side view of a session. ID is the server-assigned
// identifier once CreateSession has returned; CandidateID is whatever the
// caller proposed (may be empty, may differ from ID forever).
type Session struct {
	ID          string
	CandidateID string

	Name            string
	Task            string
	Tags            []string
	ExperimentID    string
	DatasetItemID   string
	Rubrics         []string
	ProductionMonitoring bool
	AutoEnd         bool

	Status SessionStatus
	Time   SessionTime
}

// SessionTime tracks the lifecycle timestamps of a session.
type SessionTime struct {
	Created time.Time
	Ended   *time.Time
}

// EndParams describes a session-end request.
type EndParams struct {
	Success bool
	Reason  string
	Eval    *float64
}
