// Package queue implements the bounded producer/consumer event pipeline:
// batching, dependency-aware parallel dispatch, blob offload, retries, and
// deferrals (spec.md §4.5 — "the hardest subsystem"). The batch-assembly
// coordinator and fixed worker pool generalize the teacher's
// goroutine-per-request dispatch pattern in internal/session/loop.go from a
// single retrying request into N concurrent dispatchers bounded by a
// semaphore, gated by the dependency-group barrier of §4.5.5.
package queue

import (
	"sync"
	"time"

	"github.com/lucidicai/lucidic-go/internal/diagnostics"
	"github.com/lucidicai/lucidic-go/internal/logging"
	"github.com/lucidicai/lucidic-go/internal/transport"
	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
)

// Config tunes the queue's batching and concurrency behavior. All fields
// are sourced from internal/config.
type Config struct {
	MaxQueueSize  int
	FlushAtCount  int
	FlushInterval time.Duration
	WorkerCount   int

	BlobThresholdBytes int
}

// Queue is one session's (or one client's) event pipeline. It owns its
// incoming channel, its delivered-id set, and its deferred list, and holds
// the diagnostics bus it was constructed with (which may be shared with
// other queues) — no package-level singleton, matching the "one owned
// instance" design note.
type Queue struct {
	cfg    Config
	client *transport.Client
	bus    *diagnostics.Bus

	incoming chan *luciditypes.Event

	deliveredMu sync.Mutex
	delivered   map[string]bool

	deferredMu sync.Mutex
	deferred   []*luciditypes.Event

	inFlight int32
	inFlightMu sync.Mutex

	sem chan struct{} // worker-pool semaphore, buffered to WorkerCount

	flushSignal chan chan struct{}
	stopCh      chan struct{}
	stopped     bool
	stopMu      sync.Mutex

	wg sync.WaitGroup
}

// New constructs a Queue and starts its batch-assembly coordinator. Every
// New must be paired with a Shutdown call.
func New(cfg Config, client *transport.Client, bus *diagnostics.Bus) *Queue {
	q := &Queue{
		cfg:         cfg,
		client:      client,
		bus:         bus,
		incoming:    make(chan *luciditypes.Event, cfg.MaxQueueSize),
		delivered:   make(map[string]bool),
		sem:         make(chan struct{}, cfg.WorkerCount),
		flushSignal: make(chan chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}

	q.wg.Add(1)
	go q.coordinate()
	return q
}

// Enqueue attempts a non-blocking put bounded by a brief timeout (~1ms).
// On a full queue, the new item is dropped (not the oldest) per the
// overflow policy in spec.md §4.5.8.
func (q *Queue) Enqueue(item *luciditypes.Event) {
	select {
	case q.incoming <- item:
		q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindItemEnqueued, Data: item.ClientEventID})
		return
	default:
	}

	timer := time.NewTimer(time.Millisecond)
	defer timer.Stop()
	select {
	case q.incoming <- item:
		q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindItemEnqueued, Data: item.ClientEventID})
	case <-timer.C:
		q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindItemDropped, Data: item.ClientEventID})
	}
}

// IsEmpty reports whether the in-queue, deferred, and in-flight counts are
// all zero.
func (q *Queue) IsEmpty() bool {
	if len(q.incoming) != 0 {
		return false
	}
	q.deferredMu.Lock()
	deferredEmpty := len(q.deferred) == 0
	q.deferredMu.Unlock()
	if !deferredEmpty {
		return false
	}
	return q.currentInFlight() == 0
}

func (q *Queue) currentInFlight() int32 {
	q.inFlightMu.Lock()
	defer q.inFlightMu.Unlock()
	return q.inFlight
}

func (q *Queue) addInFlight(delta int32) {
	q.inFlightMu.Lock()
	q.inFlight += delta
	q.inFlightMu.Unlock()
}

// ForceFlush signals the coordinator to drain the queue and polls at ~20Hz
// until empty or the deadline elapses. It returns early (without error) if
// the observed queue size fails to change for ~0.5s while non-zero — a
// progress stall — and it never raises regardless of outcome.
func (q *Queue) ForceFlush(deadline time.Duration) {
	ack := make(chan struct{}, 1)
	select {
	case q.flushSignal <- ack:
	default:
	}

	deadlineAt := time.Now().Add(deadline)
	ticker := time.NewTicker(50 * time.Millisecond) // ~20Hz
	defer ticker.Stop()

	lastSize := -1
	var stalledSince time.Time

	for {
		if q.IsEmpty() {
			return
		}
		if time.Now().After(deadlineAt) {
			return
		}

		size := len(q.incoming)
		if size == lastSize && size != 0 {
			if stalledSince.IsZero() {
				stalledSince = time.Now()
			} else if time.Since(stalledSince) >= 500*time.Millisecond {
				return
			}
		} else {
			stalledSince = time.Time{}
		}
		lastSize = size

		<-ticker.C
	}
}

// Shutdown flushes, stops the coordinator and workers, and joins them. A
// worker refusing to terminate by the deadline is reported at debug, never
// raised.
func (q *Queue) Shutdown(deadline time.Duration) {
	q.ForceFlush(deadline)

	q.stopMu.Lock()
	if q.stopped {
		q.stopMu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopCh)
	q.stopMu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		logging.Debug().Msg("queue coordinator did not stop within the shutdown deadline")
	}
}

func (q *Queue) coordinate() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []*luciditypes.Event

	drain := func() {
		for {
			select {
			case item := <-q.incoming:
				batch = append(batch, item)
			default:
				return
			}
		}
	}

	dispatchAndReset := func() {
		q.deferredMu.Lock()
		pending := q.deferred
		q.deferred = nil
		q.deferredMu.Unlock()

		if len(batch) == 0 && len(pending) == 0 {
			return
		}
		full := append(pending, batch...)
		batch = nil
		q.dispatchBatch(full)
	}

	for {
		select {
		case <-q.stopCh:
			drain()
			dispatchAndReset()
			return

		case item := <-q.incoming:
			batch = append(batch, item)
			if len(batch) >= q.cfg.FlushAtCount {
				drain()
				dispatchAndReset()
			}

		case ack := <-q.flushSignal:
			drain()
			dispatchAndReset()
			select {
			case ack <- struct{}{}:
			default:
			}

		case <-ticker.C:
			drain()
			dispatchAndReset()
		}
	}
}

