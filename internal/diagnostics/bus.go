// Package diagnostics provides an in-process pub/sub bus for internal
// lifecycle notifications (dropped items, deferrals, orphaned groups,
// dispatch failures) that would otherwise only be visible as log lines.
//
// Delivery is by direct function calls with full type information. Each Bus
// also creates a watermill gochannel instance and closes it in Close, but no
// notification passes through it.
package diagnostics

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Kind identifies the type of a diagnostic notification.
type Kind string

const (
	KindItemEnqueued   Kind = "item.enqueued"
	KindItemDropped    Kind = "item.dropped"
	KindItemDeferred   Kind = "item.deferred"
	KindBatchDispatched Kind = "batch.dispatched"
	KindGroupOrphaned  Kind = "group.orphaned"
	KindDispatchFailed Kind = "dispatch.failed"
	KindBlobUploaded   Kind = "blob.uploaded"
	KindSessionEnded   Kind = "session.ended"
)

// Event is one diagnostic notification. Data carries kind-specific detail
// (an event id, a batch size, an error) and is intentionally untyped so
// new kinds never require a bus-wide schema change.
type Event struct {
	Kind Kind
	Data any
}

// Subscriber receives bus events. It must not block for long: Publish calls
// subscribers in their own goroutine, but PublishSync does not.
type Subscriber func(Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is a single owned instance of the diagnostics pub/sub system. Callers
// (the SDK instance that creates it, and each Queue built with it) hold a
// reference to the bus they were constructed with rather than reaching for
// a package-level singleton — see DESIGN.md on singleton elimination.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[Kind][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

// New creates a bus with its own watermill gochannel instance.
func New() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 256,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[Kind][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for events of the given kind. The returned func
// unsubscribes it.
func (b *Bus) Subscribe(kind Kind, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[kind] = append(b.subscribers[kind], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(kind, id) }
}

// SubscribeAll registers fn for every event kind.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[kind]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

func (b *Bus) snapshot(kind Kind) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	subs := make([]Subscriber, 0, len(b.subscribers[kind])+len(b.global))
	for _, entry := range b.subscribers[kind] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Publish delivers ev to subscribers asynchronously, one goroutine each, so
// a slow subscriber never stalls the publisher (the queue coordinator and
// worker pool are on the hot path).
func (b *Bus) Publish(ev Event) {
	for _, sub := range b.snapshot(ev.Kind) {
		go sub(ev)
	}
}

// PublishSync delivers ev to subscribers in the caller's goroutine. Tests
// use this to assert on diagnostics deterministically.
func (b *Bus) PublishSync(ev Event) {
	for _, sub := range b.snapshot(ev.Kind) {
		sub(ev)
	}
}

// Close stops the bus; further Publish/Subscribe calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.subscribers = make(map[Kind][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
