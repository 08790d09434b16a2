package player

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// ListenerID identifies a registered handler for removal.
type ListenerID uint64

// Handler receives an event payload.
type Handler func(payload any)

type listener struct {
	id ListenerID
	fn Handler
}

// Emitter is a synchronous event bus. Handlers run on the emitting goroutine,
// in registration order, without the bus lock held.
type Emitter struct {
	mu       sync.Mutex
	nextID   ListenerID
	handlers map[string][]listener
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[string][]listener),
	}
}

// On registers a handler and returns its ID.
func (e *Emitter) On(event string, h Handler) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[string][]listener)
	}
	e.nextID++
	e.handlers[event] = append(e.handlers[event], listener{id: e.nextID, fn: h})
	return e.nextID
}

// Off removes a handler. Unknown IDs are ignored.
func (e *Emitter) Off(event string, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.handlers[event]
	for i, l := range list {
		if l.id == id {
			next := make([]listener, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(e.handlers, event)
			} else {
				e.handlers[event] = next
			}
			return
		}
	}
}

// Emit dispatches payload to every handler registered for event.
// A panicking handler is logged and does not stop dispatch.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	list := e.handlers[event]
	e.mu.Unlock()

	for _, l := range list {
		e.dispatch(event, l, payload)
	}
}

func (e *Emitter) dispatch(event string, l listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("player: handler panicked: event=%s listener=%d panic=%v", event, l.id, r)
		}
	}()
	l.fn(payload)
}

// ListenerCount returns the number of handlers registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}

// TotalListeners returns the number of handlers across all events.
func (e *Emitter) TotalListeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, list := range e.handlers {
		n += len(list)
	}
	return n
}
