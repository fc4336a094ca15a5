// Package subscription maps event types to ordered handler lists and fans
// payloads out to them.
package subscription

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"marketfeed-go/internal/metrics"
	"marketfeed-go/internal/signal"
)

// Handler receives one notification payload. Returning an error or
// panicking is isolated to this handler.
type Handler func(payload any) error

// Token identifies one registration. The zero Token is never issued.
type Token struct {
	Event signal.EventType
	id    uint64
}

// Valid reports whether the token came from Subscribe.
func (t Token) Valid() bool { return t.id != 0 }

// HandlerError wraps a failure raised by a subscriber callback.
type HandlerError struct {
	Event signal.EventType
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type entry struct {
	id      uint64
	handler Handler
}

// Registry holds handlers per event type. Handler lists are copy-on-write
// so a Notify pass iterates a fixed snapshot.
type Registry struct {
	log      zerolog.Logger
	nextID   atomic.Uint64
	mu       sync.RWMutex
	handlers map[signal.EventType][]entry
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:      log,
		handlers: make(map[signal.EventType][]entry),
	}
}

// Subscribe appends handler under event. It panics on a nil handler.
func (r *Registry) Subscribe(event signal.EventType, handler Handler) Token {
	if handler == nil {
		panic("subscription: nil handler for " + string(event))
	}
	id := r.nextID.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.handlers[event]
	next := make([]entry, len(current), len(current)+1)
	copy(next, current)
	r.handlers[event] = append(next, entry{id: id, handler: handler})
	return Token{Event: event, id: id}
}

// Unsubscribe removes exactly the registration behind token. It reports
// whether anything was removed; repeated calls are harmless.
func (r *Registry) Unsubscribe(token Token) bool {
	if !token.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.handlers[token.Event]
	for i, e := range current {
		if e.id != token.id {
			continue
		}
		next := make([]entry, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(r.handlers, token.Event)
		} else {
			r.handlers[token.Event] = next
		}
		return true
	}
	return false
}

// Count returns the number of handlers registered for event.
func (r *Registry) Count(event signal.EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Notify calls every handler registered for event at the time of the call,
// in registration order, on the caller's goroutine. Failures are logged and
// returned as *HandlerError values; they never stop the pass.
func (r *Registry) Notify(event signal.EventType, payload any) []error {
	r.mu.RLock()
	snapshot := r.handlers[event]
	r.mu.RUnlock()

	var errs []error
	for _, e := range snapshot {
		if err := r.invoke(event, e.handler, payload); err != nil {
			metrics.HandlerErrors.WithLabelValues(string(event)).Inc()
			r.log.Warn().Err(err).Str("event", string(event)).Msg("subscriber failed")
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *Registry) invoke(event signal.EventType, handler Handler, payload any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &HandlerError{Event: event, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	if herr := handler(payload); herr != nil {
		return &HandlerError{Event: event, Err: herr}
	}
	return nil
}
