package controller

import (
	"sync"

	"moldmap/internal/protocol"
)

// Lifecycle kinds published by the controller alongside the protocol
// event kinds (VALIDATION, POS, PROGRESS, COMPLETE, ERROR).
const (
	KindConnected    = "connected"
	KindDisconnected = "disconnected"
)

// Event is the envelope republished to bus subscribers. Data is nil for
// lifecycle events.
type Event struct {
	Kind string
	Data protocol.Event
}

// subscriber holds a buffered channel and an optional kind filter.
type subscriber struct {
	ch    chan Event
	kinds map[string]struct{} // nil means all kinds
}

// Bus fans controller events out to independent listeners (CLI, monitor,
// persistence) without coupling them to the transport. Notification is
// non-blocking: a subscriber whose buffer is full misses the event rather
// than stalling delivery.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBus constructs a ready Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a listener for the given kinds (all kinds when none
// are named). Returns the receive channel and an unsubscribe function
// that closes it.
func (b *Bus) Subscribe(kinds ...string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 64)}
	if len(kinds) > 0 {
		s.kinds = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		_, ok := b.subs[s]
		delete(b.subs, s)
		b.mu.Unlock()
		if ok {
			close(s.ch)
		}
	}
	return s.ch, unsub
}

// Publish delivers e to every matching subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if s.kinds != nil {
			if _, ok := s.kinds[e.Kind]; !ok {
				continue
			}
		}
		select {
		case s.ch <- e:
		default:
			// slow consumer, drop
		}
	}
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
