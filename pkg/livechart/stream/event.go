package stream

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chosenoffset/livechart/pkg/livechart/sample"
)

// Event names a message on the push channel.
type Event string

const (
	EventConnect    Event = "connect"
	EventDataUpdate Event = "data-update"
	EventDisconnect Event = "disconnect"
)

// Message is delivered to handlers. Sample is set for EventDataUpdate only;
// Err carries the reason for an unexpected EventDisconnect.
type Message struct {
	Event  Event
	Handle uuid.UUID
	Sample sample.Sample
	Err    error
}

// Handler receives messages of the events it was registered for.
type Handler interface {
	Handle(msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg Message) error

// Handle calls f(msg).
func (f HandlerFunc) Handle(msg Message) error {
	return f(msg)
}

// Registry maps events to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Event][]Handler),
	}
}

// On registers h for event. Handlers run in registration order.
func (r *Registry) On(event Event, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
}

// Dispatch runs every handler registered for msg.Event and stops at the first
// error. An event without handlers is not an error.
func (r *Registry) Dispatch(msg Message) error {
	r.mu.RLock()
	handlers := make([]Handler, len(r.handlers[msg.Event]))
	copy(handlers, r.handlers[msg.Event])
	r.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(msg); err != nil {
			return fmt.Errorf("%s handler: %w", msg.Event, err)
		}
	}
	return nil
}

// Clear unsubscribes all handlers.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[Event][]Handler)
}

// Len returns the number of handlers registered for event.
func (r *Registry) Len(event Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}
