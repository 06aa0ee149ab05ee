package feed

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Hub is an in-process broadcast sink. Slow subscribers never block
// publishers; events that do not fit a subscriber's buffer are dropped for
// that subscriber and counted.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	dropped atomic.Int64
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription is one receiver on a hub.
type Subscription struct {
	hub    *Hub
	ch     chan Event
	filter func(Event) bool
	once   sync.Once
}

// C returns the receive channel. It is closed when the subscription or hub closes.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if _, ok := s.hub.subs[s]; ok {
			delete(s.hub.subs, s)
			close(s.ch)
		}
		s.hub.mu.Unlock()
	})
}

// Subscribe registers a receiver. A nil filter accepts every event; buffer
// <= 0 uses DefaultBuffer.
func (h *Hub) Subscribe(buffer int, filter func(Event) bool) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{hub: h, ch: make(chan Event, buffer), filter: filter}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish implements Sink.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of attached receivers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close detaches and closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}

// OfType returns a filter accepting only the given event types.
func OfType(types ...EventType) func(Event) bool {
	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(ev Event) bool {
		_, ok := set[ev.Type]
		return ok
	}
}
