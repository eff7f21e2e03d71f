package realtime

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Handler receives the payload of a routed event.
// Returning an error only gets it logged; other handlers still run.
type Handler func(payload json.RawMessage) error

// Subscription identifies one registration made with Router.On.
type Subscription struct {
	eventType string
	id        uint64
}

// EventType returns the event type the subscription was registered for.
func (s Subscription) EventType() string {
	return s.eventType
}

type registration struct {
	id      uint64
	handler Handler
	removed atomic.Bool
}

// Router fans inbound events out to handlers keyed by event type.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]*registration
	nextID   atomic.Uint64
	logger   zerolog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		handlers: make(map[string][]*registration),
		logger:   logger,
	}
}

// On registers handler for eventType. Registering the same function twice
// yields two subscriptions and two invocations per event.
func (r *Router) On(eventType string, handler Handler) Subscription {
	reg := &registration{
		id:      r.nextID.Add(1),
		handler: handler,
	}

	r.mu.Lock()
	r.handlers[eventType] = append(r.handlers[eventType], reg)
	r.mu.Unlock()

	return Subscription{eventType: eventType, id: reg.id}
}

// Off removes the given subscriptions for eventType, or every registration
// for eventType when none are given.
func (r *Router) Off(eventType string, subs ...Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.handlers[eventType]
	if !ok {
		return
	}

	if len(subs) == 0 {
		for _, reg := range list {
			reg.removed.Store(true)
		}
		delete(r.handlers, eventType)
		return
	}

	// Build a fresh slice; a dispatch in progress may still hold the old one.
	kept := make([]*registration, 0, len(list))
	for _, reg := range list {
		if matchesAny(eventType, reg.id, subs) {
			reg.removed.Store(true)
			continue
		}
		kept = append(kept, reg)
	}
	if len(kept) == 0 {
		delete(r.handlers, eventType)
	} else {
		r.handlers[eventType] = kept
	}
}

// Count returns the number of live registrations for eventType.
func (r *Router) Count(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[eventType])
}

// Dispatch parses a raw frame and delivers its payload to the handlers of its type.
// Malformed frames are logged and dropped.
func (r *Router) Dispatch(raw []byte) {
	envelope, err := ParseEnvelope(raw)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Int("size", len(raw)).
			Msg("dropping inbound frame")
		return
	}

	eventType := envelope.Type
	if isLifecycle(eventType) {
		eventType = serverEventPrefix + eventType
	}
	r.Emit(eventType, envelope.Payload)
}

// Emit delivers payload to every handler registered for eventType, in registration order.
func (r *Router) Emit(eventType string, payload json.RawMessage) {
	r.mu.RLock()
	snapshot := slices.Clone(r.handlers[eventType])
	r.mu.RUnlock()

	for _, reg := range snapshot {
		if reg.removed.Load() {
			continue
		}
		if err := r.invoke(eventType, reg.handler, payload); err != nil {
			r.logger.Error().
				Err(err).
				Str("event_type", eventType).
				Msg("event handler failed")
		}
	}
}

func (r *Router) invoke(eventType string, handler Handler, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &SubscriberError{EventType: eventType, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if herr := handler(payload); herr != nil {
		return &SubscriberError{EventType: eventType, Err: herr}
	}
	return nil
}

func matchesAny(eventType string, id uint64, subs []Subscription) bool {
	for _, sub := range subs {
		if sub.eventType == eventType && sub.id == id {
			return true
		}
	}
	return false
}
