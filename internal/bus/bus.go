// Package bus provides the in-process publish/subscribe register that
// fans inbound realtime events out to application handlers.
package bus

import (
	"log/slog"
	"sync"
)

// Wildcard receives every published event in addition to its typed channel.
const Wildcard = "*"

// Event is a published occurrence: a decoded wire message, a state change,
// or an error surfaced by the connection manager.
type Event struct {
	Type string
	Data any
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine, in registration order.
type Handler func(evt Event)

type entry struct {
	id uint64
	fn Handler
}

// Bus registers handlers per event type and dispatches published events.
// A snapshot of the handler set is taken before dispatch, so handlers may
// unsubscribe themselves or others mid-dispatch without corrupting
// iteration.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string][]entry
	nextID   uint64
}

// New creates an empty event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]entry),
	}
}

// Subscribe registers a handler for an event type and returns its
// unsubscribe function. Subscribing to Wildcard receives all events.
func (b *Bus) Subscribe(eventType string, h Handler) func() {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], entry{id: id, fn: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(eventType, id)
		})
	}
}

func (b *Bus) remove(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[eventType]
	for i, e := range entries {
		if e.id == id {
			b.handlers[eventType] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

// Publish dispatches an event to the handlers of its type, then to the
// wildcard handlers, each in registration order.
func (b *Bus) Publish(eventType string, data any) {
	b.mu.Lock()
	typed := append([]entry(nil), b.handlers[eventType]...)
	var catchAll []entry
	if eventType != Wildcard {
		catchAll = append([]entry(nil), b.handlers[Wildcard]...)
	}
	b.mu.Unlock()

	evt := Event{Type: eventType, Data: data}
	for _, e := range typed {
		e.fn(evt)
	}
	for _, e := range catchAll {
		e.fn(evt)
	}
}

// HandlerCount reports the number of registered handlers for an event type.
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[eventType])
}
