package docbind

import (
	"context"
	"log/slog"
	"sync"
)

// EventType distinguishes between event kinds on a Loop.
type EventType int

const (
	// EventPropertyChange carries a component property change
	// notification.
	EventPropertyChange EventType = iota + 1
	// EventSnapshot carries a deferred snapshot delivery.
	EventSnapshot
)

// Event wraps property changes and snapshot deliveries for the event
// queue.
type Event struct {
	Type     EventType
	Property string
	Old, New any

	// deliver invokes the wrapped snapshot callback. Set only for
	// EventSnapshot.
	deliver func()
}

// Loop serializes external events onto a single goroutine, providing
// the cooperative event-loop contract a Binder requires when the host
// framework or the database client delivers from foreign goroutines.
//
// Thread-safety model:
//   - PropertyChanged(), Client() wrappers: safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// ERROR HANDLING: on event processing failure the error is logged with
// full event context and processing continues. Fatal binding errors
// are configuration-class and surface at Attach time instead, which
// runs synchronously outside the loop.
type Loop struct {
	queue *eventQueue
	log   *slog.Logger
}

// NewLoop creates an idle event loop.
func NewLoop() *Loop {
	return &Loop{
		queue: newEventQueue(),
		log:   slog.Default(),
	}
}

// PropertyChanged enqueues a property change notification.
// Thread-safe. Returns false if the loop has been stopped.
func (l *Loop) PropertyChanged(name string, old, new any) bool {
	return l.queue.Enqueue(Event{
		Type:     EventPropertyChange,
		Property: name,
		Old:      old,
		New:      new,
	})
}

// Client wraps a database client so that every snapshot callback it
// would deliver is enqueued onto the loop instead of firing on the
// client's goroutine. The binder driven by this loop must be
// constructed with the wrapped client.
func (l *Loop) Client(c Client) Client {
	return loopClient{loop: l, inner: c}
}

// Run processes events against b until ctx is cancelled or Stop is
// called. Must be called from exactly one goroutine; all binder
// mutation happens here.
func (l *Loop) Run(ctx context.Context, b *Binder) error {
	l.log.Debug("binding loop starting")

	for {
		event, ok := l.queue.TryDequeue()
		if ok {
			l.processEvent(b, event)
			continue
		}

		select {
		case <-ctx.Done():
			l.log.Debug("binding loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			if l.queue.Len() == 0 {
				l.log.Debug("binding loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts the loop down. Closes the event queue, which
// causes Run to return once drained.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Len returns the current number of pending events.
func (l *Loop) Len() int {
	return l.queue.Len()
}

func (l *Loop) processEvent(b *Binder, event Event) {
	switch event.Type {
	case EventPropertyChange:
		if err := b.PropertyChanged(event.Property, event.Old, event.New); err != nil {
			l.log.Error("property change processing failed",
				"error", err,
				"property", event.Property,
			)
		}
	case EventSnapshot:
		if event.deliver != nil {
			event.deliver()
		}
	default:
		l.log.Error("unknown event type", "event_type", int(event.Type))
	}
}

// loopClient defers snapshot callbacks through the loop's queue.
type loopClient struct {
	loop  *Loop
	inner Client
}

func (c loopClient) Doc(path string) DocumentRef {
	return loopDocRef{loop: c.loop, inner: c.inner.Doc(path)}
}

func (c loopClient) Collection(path string) CollectionRef {
	ref := c.inner.Collection(path)
	return loopCollectionRef{
		loopQuery: loopQuery{loop: c.loop, inner: ref},
		path:      ref.Path(),
	}
}

type loopDocRef struct {
	loop  *Loop
	inner DocumentRef
}

func (r loopDocRef) Path() string { return r.inner.Path() }

func (r loopDocRef) Snapshots(fn func(DocumentSnapshot)) Unsubscribe {
	return r.inner.Snapshots(func(snap DocumentSnapshot) {
		r.loop.queue.Enqueue(Event{
			Type:    EventSnapshot,
			deliver: func() { fn(snap) },
		})
	})
}

type loopQuery struct {
	loop  *Loop
	inner Query
}

func (q loopQuery) Where(field, op string, value any) Query {
	return loopQuery{loop: q.loop, inner: q.inner.Where(field, op, value)}
}

func (q loopQuery) OrderBy(field string, desc bool) Query {
	return loopQuery{loop: q.loop, inner: q.inner.OrderBy(field, desc)}
}

func (q loopQuery) Limit(n int) Query {
	return loopQuery{loop: q.loop, inner: q.inner.Limit(n)}
}

func (q loopQuery) Snapshots(fn func(QuerySnapshot)) Unsubscribe {
	return q.inner.Snapshots(func(snap QuerySnapshot) {
		q.loop.queue.Enqueue(Event{
			Type:    EventSnapshot,
			deliver: func() { fn(snap) },
		})
	})
}

type loopCollectionRef struct {
	loopQuery
	path string
}

func (r loopCollectionRef) Path() string { return r.path }

// eventQueue is a thread-safe FIFO queue for loop events.
//
// The queue is unbounded so cascading rebuilds and snapshot bursts
// never block a producer. Thread-safety covers external enqueuing
// while the Run loop dequeues; in practice most usage is
// single-threaded.
//
// The queue uses a channel for signaling to enable context-aware
// waiting in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1; coalesces signals
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the Event's captured snapshot closures can
	// be collected before the backing array is reallocated.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued. Wakes any
// blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
