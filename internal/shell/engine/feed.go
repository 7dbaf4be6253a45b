package engine

import (
	"sync"
	"time"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Progress Feed
// =============================================================================

// defaultFeedCapacity bounds how many events one run's feed retains for
// replay. A run emits a handful of events per service, so this covers any
// realistic plan with room to spare.
const defaultFeedCapacity = 1024

// subscriberBuffer is the channel depth given to each subscriber. A
// subscriber that falls further behind misses events on the channel and is
// expected to catch up through Since.
const subscriberBuffer = 64

// Feed is the ordered in-memory progress feed of one run. Append assigns
// strictly increasing sequence numbers and keeps reported progress
// monotone. Pollers replay the retained tail with Since; push consumers
// attach with Subscribe. All methods are safe on a nil feed, which turns
// emission into a no-op for internal converge passes that nobody watches.
type Feed struct {
	mu       sync.Mutex
	runID    string
	capacity int

	events   []domain.Event
	nextSeq  uint64
	progress float64

	subs    map[int]chan domain.Event
	nextSub int
	closed  bool
}

// NewFeed creates a feed for one run.
func NewFeed(runID string, capacity int) *Feed {
	if capacity <= 0 {
		capacity = defaultFeedCapacity
	}
	return &Feed{
		runID:    runID,
		capacity: capacity,
		subs:     make(map[int]chan domain.Event),
	}
}

// Append stamps an event with the next sequence number and publishes it.
// Progress below the high-water mark is raised to it, so consumers never
// observe progress moving backward. A terminal event closes the feed and
// every subscriber channel.
func (f *Feed) Append(ev domain.Event) domain.Event {
	if f == nil {
		return ev
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ev
	}

	f.nextSeq++
	ev.Seq = f.nextSeq
	ev.RunID = f.runID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if ev.Progress < f.progress {
		ev.Progress = f.progress
	} else {
		f.progress = ev.Progress
	}

	f.events = append(f.events, ev)
	if len(f.events) > f.capacity {
		f.events = f.events[len(f.events)-f.capacity:]
	}

	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, it can replay via Since
		}
	}
	if ev.Kind.Terminal() {
		f.closed = true
		for id, ch := range f.subs {
			close(ch)
			delete(f.subs, id)
		}
	}
	return ev
}

// Since returns retained events with a sequence number greater than after,
// in order. Events evicted from the bounded tail are gone; callers asking
// from zero get whatever is still retained.
func (f *Feed) Since(after uint64) []domain.Event {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Event, 0, len(f.events))
	for _, ev := range f.events {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribe attaches a push channel that receives every event appended
// after the call. The cancel function detaches and closes the channel; it
// is safe to call more than once and after the feed closed. Subscribing to
// a closed feed returns an already-closed channel.
func (f *Feed) Subscribe() (<-chan domain.Event, func()) {
	if f == nil {
		ch := make(chan domain.Event)
		close(ch)
		return ch, func() {}
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan domain.Event, subscriberBuffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Closed reports whether a terminal event has been appended.
func (f *Feed) Closed() bool {
	if f == nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
