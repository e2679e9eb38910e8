// SPDX-License-Identifier: GPL-3.0-only

package sensor

import (
	"sync"
	"time"
)

// Event is a single sensor delivery.
// Values must be treated as read-only; the slice is shared by all listeners.
type Event struct {
	Sensor    Descriptor
	Values    []float64
	Timestamp time.Time
}

// Primary returns the first channel value, or 0 when the event carries none.
func (e Event) Primary() float64 {
	if len(e.Values) == 0 {
		return 0
	}
	return e.Values[0]
}

// Listener receives sensor events.
type Listener interface {
	OnReading(Event)
}

// ListenerFunc adapts an ordinary function to the Listener interface.
type ListenerFunc func(Event)

// OnReading calls f(ev).
func (f ListenerFunc) OnReading(ev Event) {
	f(ev)
}

// Hub fans events out to registered listeners.
// Each listener is served by its own goroutine with a single-slot queue:
// a slow listener only ever sees the newest pending event and never delays
// the others.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

type subscription struct {
	listener Listener
	queue    chan Event
	done     chan struct{}
	once     sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscription)}
}

// Subscribe registers l and starts delivering events to it.
// The returned function stops delivery; calling it more than once is safe.
func (h *Hub) Subscribe(l Listener) (unsubscribe func()) {
	sub := &subscription{
		listener: l,
		queue:    make(chan Event, 1),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go sub.deliver()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.stop()
	}
}

// Publish offers ev to every listener without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		sub.offer(ev)
	}
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops delivery to all listeners. Later subscriptions are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[int]*subscription)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscription) offer(ev Event) {
	select {
	case s.queue <- ev:
		return
	default:
	}

	// Queue full: drop the stale event in favour of the newest one.
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- ev:
	default:
	}
}

func (s *subscription) deliver() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.listener.OnReading(ev)
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() {
		close(s.done)
	})
}
