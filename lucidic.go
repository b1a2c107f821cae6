package lucidic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucidicai/lucidic-go/internal/ambient"
	"github.com/lucidicai/lucidic-go/internal/config"
	"github.com/lucidicai/lucidic-go/internal/diagnostics"
	"github.com/lucidicai/lucidic-go/internal/logging"
	"github.com/lucidicai/lucidic-go/internal/mask"
	"github.com/lucidicai/lucidic-go/internal/queue"
	"github.com/lucidicai/lucidic-go/internal/sdkerrors"
	"github.com/lucidicai/lucidic-go/internal/session"
	"github.com/lucidicai/lucidic-go/internal/shutdown"
	"github.com/lucidicai/lucidic-go/internal/transport"
	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
)

// neverSuppressed reports whether err is a class that must surface even
// with suppress_errors enabled: authentication and configuration failures
// mean continuing would silently lose all telemetry (spec.md §7).
func neverSuppressed(err error) bool {
	var authErr *sdkerrors.AuthenticationError
	var cfgErr *config.Error
	return errors.As(err, &authErr) || errors.As(err, &cfgErr)
}

// sdk holds every piece of process-wide state the public surface needs. One
// instance is created per Init call; there is a single active instance at a
// time, matching the original SDK's module-level init/create_session/
// create_event surface — this is the one deliberate exception to "one owned
// instance" elsewhere in the codebase, justified in DESIGN.md.
type sdk struct {
	cfg      config.Config
	client   *transport.Client
	bus      *diagnostics.Bus
	sessions *session.Manager
	maskHook *mask.Hook

	mu           sync.Mutex
	sessionQueues map[string]*queue.Queue
}

var (
	instanceMu sync.Mutex
	instance   *sdk
)

// Options configures Init; it is a thin public alias over config.Overrides
// plus the masking hook, which has no place in internal/config (it is a
// function value, not a scalar setting).
type Options struct {
	APIKey  string
	AgentID string
	BaseURL string

	Timeout       *time.Duration
	MaxRetries    *int
	BackoffFactor *float64
	MaxConns      *int

	BlobThresholdBytes *int
	FlushInterval      *time.Duration
	FlushAtCount       *int
	MaxQueueSize       *int
	WorkerCount        *int

	AutoEnd        *bool
	SuppressErrors *bool
	Debug          *bool
	Verbose        *bool

	Mask mask.Func
}

// Init resolves configuration (these Options override environment
// variables over built-in defaults) and prepares the SDK for use. It is not
// suppressible: a configuration error must surface immediately (spec.md §7).
func Init(opts Options) error {
	overrides := config.Overrides{}
	if opts.APIKey != "" {
		overrides.APIKey = &opts.APIKey
	}
	if opts.AgentID != "" {
		overrides.AgentID = &opts.AgentID
	}
	if opts.BaseURL != "" {
		overrides.BaseURL = &opts.BaseURL
	}
	overrides.Timeout = opts.Timeout
	overrides.MaxRetries = opts.MaxRetries
	overrides.BackoffFactor = opts.BackoffFactor
	overrides.MaxConns = opts.MaxConns
	overrides.BlobThresholdBytes = opts.BlobThresholdBytes
	overrides.FlushInterval = opts.FlushInterval
	overrides.FlushAtCount = opts.FlushAtCount
	overrides.MaxQueueSize = opts.MaxQueueSize
	overrides.WorkerCount = opts.WorkerCount
	overrides.AutoEnd = opts.AutoEnd
	overrides.SuppressErrors = opts.SuppressErrors
	overrides.Debug = opts.Debug
	overrides.Verbose = opts.Verbose

	cfg, err := config.Load(overrides)
	if err != nil {
		return err
	}

	if cfg.Debug {
		logging.Init(logging.Config{Level: logging.DebugLevel, Output: logging.DefaultConfig().Output})
	}

	client := transport.New(cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.MaxConns, cfg.MaxRetries, cfg.BackoffFactor)
	bus := diagnostics.New()
	bus.SubscribeAll(func(ev diagnostics.Event) {
		logging.Debug().Str("kind", string(ev.Kind)).Interface("data", ev.Data).Msg("diagnostics")
	})

	s := &sdk{
		cfg:           cfg,
		client:        client,
		bus:           bus,
		sessions:      session.NewManager(client, cfg.AgentID),
		maskHook:      mask.New(opts.Mask),
		sessionQueues: make(map[string]*queue.Queue),
	}

	instanceMu.Lock()
	instance = s
	instanceMu.Unlock()
	return nil
}

func current() (*sdk, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil, &config.Error{Problems: []string{"lucidic.Init has not been called"}}
	}
	return instance, nil
}

// CreateSessionParams is the public surface's session creation request.
type CreateSessionParams struct {
	CandidateID          string
	Name                 string
	Task                 string
	Tags                 []string
	ExperimentID         string
	DatasetItemID        string
	Rubrics              []string
	ProductionMonitoring bool
}

// CreateSession creates (or continues, if CandidateID was seen before) a
// session and stores it in the process-global ambient slot, which
// ambient resolution consults only on the main goroutine. Authentication and
// configuration errors always surface, even with suppression enabled,
// because continuing silently would lose all telemetry (spec.md §7).
func CreateSession(ctx context.Context, params CreateSessionParams) (string, error) {
	s, err := current()
	if err != nil {
		return "", err
	}

	sess, err := s.sessions.Create(ctx, session.CreateParams{
		CandidateID:          params.CandidateID,
		Name:                 params.Name,
		Task:                 params.Task,
		Tags:                 params.Tags,
		ExperimentID:         params.ExperimentID,
		DatasetItemID:        params.DatasetItemID,
		Rubrics:              params.Rubrics,
		ProductionMonitoring: params.ProductionMonitoring,
		AutoEnd:              s.cfg.AutoEnd,
	})
	if err != nil {
		if s.cfg.SuppressErrors && !neverSuppressed(err) {
			placeholder := uuid.NewString()
			logging.Error().Err(err).Msg("create session failed with suppression enabled; returning placeholder id")
			return placeholder, nil
		}
		return "", err
	}

	q := queue.New(queue.Config{
		MaxQueueSize:       s.cfg.MaxQueueSize,
		FlushAtCount:       s.cfg.FlushAtCount,
		FlushInterval:      s.cfg.FlushInterval,
		WorkerCount:        s.cfg.WorkerCount,
		BlobThresholdBytes: s.cfg.BlobThresholdBytes,
	}, s.client, s.bus)

	s.mu.Lock()
	s.sessionQueues[sess.ID] = q
	s.mu.Unlock()

	ambient.SetActiveSession(sess.ID)

	if s.cfg.AutoEnd {
		shutdown.Register(&shutdown.Handle{
			SessionID:  sess.ID,
			AutoEnd:    true,
			FlushQueue: q.ForceFlush,
			EndSession: func(ctx context.Context) error {
				return s.sessions.End(ctx, sess.ID, luciditypes.EndParams{Success: false, Reason: "Process shutdown"})
			},
		})
	}

	return sess.ID, nil
}

// EndSession ends sessionID (or the ambient current session if empty),
// first flushing and stopping its queue, waiting up to 10 seconds.
func EndSession(ctx context.Context, sessionID string, success bool, reason string) error {
	s, err := current()
	if err != nil {
		return err
	}

	if sessionID == "" {
		sessionID = ambient.ResolveSession(ctx)
	}
	if sessionID == "" {
		return fmt.Errorf("lucidic: no session id given and no ambient session bound")
	}

	s.mu.Lock()
	q := s.sessionQueues[sessionID]
	delete(s.sessionQueues, sessionID)
	s.mu.Unlock()

	if q != nil {
		q.Shutdown(10 * time.Second)
	}

	err = s.sessions.End(ctx, sessionID, luciditypes.EndParams{Success: success, Reason: reason})
	shutdown.Unregister(sessionID)
	ambient.ClearActiveSession()

	if err != nil && s.cfg.SuppressErrors && !neverSuppressed(err) {
		logging.Error().Err(err).Msg("end session failed with suppression enabled")
		return nil
	}
	return err
}

func (s *sdk) queueFor(sessionID string) *queue.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionQueues[sessionID]
}
