package supabase

import (
	"log/slog"
	"sync"
)

type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// AuthEvent carries the session after the change; nil after sign-out.
type AuthEvent struct {
	Type    EventType
	Session *Session
}

const subscriberBuffer = 16

type subscriber struct {
	ch   chan AuthEvent
	done chan struct{}
}

type eventHub struct {
	logger *slog.Logger

	mu   sync.Mutex
	next int
	subs map[int]*subscriber
}

func newEventHub(logger *slog.Logger) *eventHub {
	return &eventHub{logger: logger, subs: make(map[int]*subscriber)}
}

// subscribe returns the event channel and a cancel func. The channel is never
// closed; readers select on their own shutdown signal.
func (h *eventHub) subscribe() (<-chan AuthEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	sub := &subscriber{ch: make(chan AuthEvent, subscriberBuffer), done: make(chan struct{})}
	h.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.done)
		})
	}
}

func (h *eventHub) publish(event AuthEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case <-sub.done:
		case sub.ch <- event:
		default:
			h.logger.Warn("auth event dropped, subscriber is full", "event", event.Type)
		}
	}
}

func (h *eventHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
