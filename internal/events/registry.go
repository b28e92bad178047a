package events

import (
	"strings"
	"sync"
	"time"

	"github.com/56kcloud/mb-client/internal/status"
)

// Type names a notification kind.
type Type string

// TypeProgressUpdated is published for every accepted design transition.
const TypeProgressUpdated Type = "progressUpdated"

// Event is a named notification carrying a status detail.
type Event struct {
	Type      Type           `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Detail    status.Message `json:"detail"`
	At        time.Time      `json:"at"`
}

// Listener receives published events. It runs on the publisher's goroutine and
// must not block for long.
type Listener func(Event)

// Publisher is the narrow surface the tracker depends on.
type Publisher interface {
	Publish(Event)
}

// Subscription identifies a registered listener for later removal.
type Subscription uint64

type registration struct {
	id       Subscription
	typ      Type
	listener Listener
}

// Registry fans events out to registered listeners.
type Registry struct {
	mu        sync.RWMutex
	nextID    Subscription
	listeners []registration
}

var _ Publisher = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds listener for events of type typ. An empty type registers for
// TypeProgressUpdated. A nil listener is ignored and yields the zero
// Subscription.
func (r *Registry) Register(typ Type, listener Listener) Subscription {
	if r == nil || listener == nil {
		return 0
	}
	typ = normalizeType(typ)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.listeners = append(r.listeners, registration{id: r.nextID, typ: typ, listener: listener})
	return r.nextID
}

// Unregister removes the listener behind sub. It reports whether a listener
// was removed; unknown or already removed subscriptions are a no-op.
func (r *Registry) Unregister(sub Subscription) bool {
	if r == nil || sub == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.listeners {
		if reg.id != sub {
			continue
		}
		r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
		return true
	}
	return false
}

// Publish delivers evt to every listener registered for its type, in
// registration order, before returning. An empty type defaults to
// TypeProgressUpdated and a zero timestamp is stamped with the current time.
func (r *Registry) Publish(evt Event) {
	if r == nil {
		return
	}
	evt.Type = normalizeType(evt.Type)
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	r.mu.RLock()
	targets := make([]Listener, 0, len(r.listeners))
	for _, reg := range r.listeners {
		if reg.typ == evt.Type {
			targets = append(targets, reg.listener)
		}
	}
	r.mu.RUnlock()

	for _, listener := range targets {
		listener(evt)
	}
}

// Len reports the number of registered listeners across all types.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Reset drops every listener.
func (r *Registry) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.listeners = nil
	r.mu.Unlock()
}

func normalizeType(typ Type) Type {
	if strings.TrimSpace(string(typ)) == "" {
		return TypeProgressUpdated
	}
	return typ
}
