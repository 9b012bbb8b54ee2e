// Package events implements a small typed observer bus. It replaces the
// fire-and-forget broadcast events of the original field app (store ready,
// sync lifecycle, connectivity transitions) with explicit subscriptions that
// have a defined unsubscribe lifecycle.
package events

import (
	"sync"
	"time"
)

// Type identifies a broadcast event.
type Type string

const (
	StoreReady    Type = "store-ready"
	SyncStarted   Type = "sync-started"
	SyncCompleted Type = "sync-completed"
	Online        Type = "online"
	Offline       Type = "offline"
)

// Event is delivered to subscribers. Data is event-specific and may be nil.
type Event struct {
	Type Type
	At   time.Time
	Data any
}

// Bus is a process-wide publish/subscribe hub. Publish never blocks the
// publisher: handlers run on their own goroutines.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Type]map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type]map[int]func(Event))}
}

// Subscribe registers fn for events of type t and returns an unsubscribe
// function. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(t Type, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.subs[t][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// Publish delivers an event of type t to every current subscriber.
func (b *Bus) Publish(t Type, data any) {
	ev := Event{Type: t, At: time.Now(), Data: data}

	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs[t]))
	for _, fn := range b.subs[t] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		go fn(ev)
	}
}
