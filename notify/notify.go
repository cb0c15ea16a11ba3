// Package notify carries non-sensitive lifecycle events from the encryption
// subsystem to an external monitoring collaborator. Events never contain
// plaintext, passwords, or raw key material.
package notify

import (
	"sync"
	"time"
)

// Lifecycle event names emitted by the subsystem.
const (
	EventInitialized          = "initialized"
	EventDataEncrypted        = "data-encrypted"
	EventDataDecrypted        = "data-decrypted"
	EventEncryptionError      = "encryption-error"
	EventDecryptionError      = "decryption-error"
	EventKeyRotated           = "key-rotated"
	EventEmergencyRequested   = "emergency-access-requested"
	EventEmergencyGranted     = "emergency-access-granted"
	EventKeyAccessLogged      = "key-access-logged"
	EventSessionKeysCleared   = "session-keys-cleared"
	EventEmergencyCancelled   = "emergency-access-cancelled"
)

// Event is one lifecycle notification. Meta holds context tags, timing and
// counts only.
type Event struct {
	Name string
	Time time.Time
	Meta map[string]string
}

// Notifier receives lifecycle events. Implementations must be safe for
// concurrent use and must not block for long; the subsystem emits inline.
type Notifier interface {
	Emit(Event)
}

// Func adapts a plain function to the Notifier interface.
type Func func(Event)

func (f Func) Emit(e Event) { f(e) }

// Nop discards all events.
type Nop struct{}

func (Nop) Emit(Event) {}

// Subscription represents a registered listener that can be detached.
type Subscription interface {
	Unsubscribe()
}

// Hub fans events out to registered listeners. The zero value is unusable;
// use NewHub.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Func
}

var _ Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{listeners: make(map[int]Func)}
}

// Subscribe registers a listener for all events. The returned Subscription
// detaches exactly this listener.
func (h *Hub) Subscribe(fn Func) Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return &hubSubscription{hub: h, id: id}
}

// Emit delivers the event to every registered listener.
func (h *Hub) Emit(e Event) {
	h.mu.RLock()
	fns := make([]Func, 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

type hubSubscription struct {
	hub  *Hub
	id   int
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.listeners, s.id)
		s.hub.mu.Unlock()
	})
}
