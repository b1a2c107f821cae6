// Package shutdown implements the process-wide graceful-shutdown
// coordinator (spec.md §4.7): a singleton — mandated by the spec itself,
// not a stylistic choice, unlike the diagnostics bus's eliminated
// singleton — that flushes every auto-ending session's queue and ends it
// when the process receives SIGINT/SIGTERM. No hook is installed for an
// uncaught panic or for a normal process exit.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lucidicai/lucidic-go/internal/logging"
)

// Handle is what a session registers with the coordinator: just enough to
// flush and end it without the coordinator depending on internal/session or
// internal/queue directly.
type Handle struct {
	SessionID string
	AutoEnd   bool

	FlushQueue func(deadline time.Duration)
	EndSession func(ctx context.Context) error
}

type sessionState int

const (
	stateLive sessionState = iota
	stateShuttingDown
)

const (
	perSessionFlushDeadline = 5 * time.Second
	totalShutdownDeadline   = 10 * time.Second
)

// Coordinator is the process-wide singleton. It is unexported; callers
// interact only through the package-level Register/Unregister functions so
// there is exactly one instance for the lifetime of the process.
type coordinator struct {
	mu           sync.Mutex
	sessions     map[string]*Handle
	states       map[string]sessionState
	signalOnce   sync.Once
	shuttingDown bool
}

var singleton = &coordinator{
	sessions: make(map[string]*Handle),
	states:   make(map[string]sessionState),
}

// Register adds a session to the live set and, the first time any session
// is ever registered, installs the SIGINT/SIGTERM handler.
func Register(h *Handle) {
	singleton.mu.Lock()
	singleton.sessions[h.SessionID] = h
	singleton.states[h.SessionID] = stateLive
	singleton.mu.Unlock()

	singleton.signalOnce.Do(installHooks)
}

// Unregister removes a session from the live set, e.g. after an explicit
// EndSession call so the coordinator does not double-end it at shutdown.
func Unregister(sessionID string) {
	singleton.mu.Lock()
	delete(singleton.sessions, sessionID)
	delete(singleton.states, sessionID)
	singleton.mu.Unlock()
}

func installHooks() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		singleton.run()
	}()
}

// RunForTest invokes the shutdown sequence synchronously, for tests that
// want to exercise it without sending a real process signal.
func RunForTest() {
	singleton.run()
}

func (c *coordinator) run() {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return
	}
	c.shuttingDown = true

	toShutdown := make([]*Handle, 0, len(c.sessions))
	for id, h := range c.sessions {
		if c.states[id] != stateLive || !h.AutoEnd {
			continue
		}
		c.states[id] = stateShuttingDown
		toShutdown = append(toShutdown, h)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, h := range toShutdown {
			h := h
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.shutdownOne(h)
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(totalShutdownDeadline):
		logging.Error().Msg("shutdown coordinator hit the total deadline with sessions still shutting down")
	}
}

func (c *coordinator) shutdownOne(h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			logging.Debug().Str("session_id", h.SessionID).Interface("panic", r).Msg("recovered panic while shutting down session")
		}
	}()

	h.FlushQueue(perSessionFlushDeadline)

	ctx, cancel := context.WithTimeout(context.Background(), perSessionFlushDeadline)
	defer cancel()

	if err := h.EndSession(ctx); err != nil {
		logging.Debug().Str("session_id", h.SessionID).Err(err).Msg("failed to end session during shutdown")
	}

	c.mu.Lock()
	delete(c.sessions, h.SessionID)
	delete(c.states, h.SessionID)
	c.mu.Unlock()
}
