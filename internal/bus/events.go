// Package bus is the in-process pub/sub layer connecting the workflow
// to observers like the operator notifier and the metrics collector.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event is one workflow occurrence. Payload keys are event-specific;
// session events always carry "session_id".
type Event struct {
	Type      string
	Source    string
	Payload   map[string]any
	Timestamp time.Time
}

// Handler is a subscriber callback. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(Event)

// Bus is a topic-based publish/subscribe hub with a bounded history
// buffer. Subscribe with "*" to observe everything.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string][]subscription
	nextID     int
	history    []Event
	maxHistory int
	logger     *slog.Logger
}

type subscription struct {
	id      string
	handler Handler
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		handlers:   make(map[string][]subscription),
		maxHistory: 500,
		logger:     logger,
	}
}

// Subscribe registers a handler for one event type (or "*") and
// returns an id for Unsubscribe.
func (b *Bus) Subscribe(eventType string, h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := fmt.Sprintf("%s#%d", eventType, b.nextID)
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: h})
	return id
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(eventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to type-specific and wildcard subscribers.
// A panicking handler is logged and does not affect the others.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	if len(b.history) >= b.maxHistory {
		b.history = b.history[1:]
	}
	b.history = append(b.history, event)
	subs := make([]subscription, 0, len(b.handlers[event.Type])+len(b.handlers["*"]))
	subs = append(subs, b.handlers[event.Type]...)
	subs = append(subs, b.handlers["*"]...)
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, event)
	}
}

func (b *Bus) deliver(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				"event", event.Type, "handler", s.id, "panic", r)
		}
	}()
	s.handler(event)
}

// History returns buffered events of one type ("*" for all) at or
// after the given time.
func (b *Bus) History(eventType string, since time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, e := range b.history {
		if e.Timestamp.Before(since) {
			continue
		}
		if eventType == "*" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Workflow event types.
const (
	EventSessionCreated   = "session.created"
	EventSessionAwaiting  = "session.awaiting_confirmation"
	EventSessionModified  = "session.modified"
	EventSessionPosted    = "session.posted"
	EventSessionCancelled = "session.cancelled"
	EventSessionFailed    = "session.failed"
	EventDraftFallback    = "draft.fallback"
	EventPostSimulated    = "post.simulated"
)
