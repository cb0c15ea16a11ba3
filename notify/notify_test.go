package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	var got []string
	sub := hub.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Name)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	hub.Emit(Event{Name: EventInitialized, Time: time.Now()})
	hub.Emit(Event{Name: EventDataEncrypted, Time: time.Now()})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventInitialized, EventDataEncrypted}, got)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()

	count := 0
	sub := hub.Subscribe(func(Event) { count++ })

	hub.Emit(Event{Name: EventKeyRotated})
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	hub.Emit(Event{Name: EventKeyRotated})

	assert.Equal(t, 1, count)
}

func TestHub_MultipleListeners(t *testing.T) {
	hub := NewHub()

	a, b := 0, 0
	hub.Subscribe(func(Event) { a++ })
	subB := hub.Subscribe(func(Event) { b++ })

	hub.Emit(Event{Name: EventDataDecrypted})
	subB.Unsubscribe()
	hub.Emit(Event{Name: EventDataDecrypted})

	assert.Equal(t, 2, a)
	assert.Equal(t, 1, b)
}

func TestFuncAndNop(t *testing.T) {
	seen := ""
	var n Notifier = Func(func(e Event) { seen = e.Name })
	n.Emit(Event{Name: EventSessionKeysCleared})
	assert.Equal(t, EventSessionKeysCleared, seen)

	Nop{}.Emit(Event{Name: "ignored"})
}
