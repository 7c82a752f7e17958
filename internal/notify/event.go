// Package notify publishes change events for completed repository
// mutations. A Bus fans each event out to subscribers such as the websocket
// hub and the webhook sink. Publishing never blocks or fails a mutation.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names the mutation an Event describes.
type EventType string

// Event types, one per mutating repository operation.
const (
	SessionCreated EventType = "session.created"
	SessionDeleted EventType = "session.deleted"
	SessionCleared EventType = "session.cleared"
	MemoryAdded    EventType = "memory.added"
	MemoryRemoved  EventType = "memory.removed"
)

// Event describes one completed mutation.
type Event struct {
	ID string `json:"id"`
	// Seq orders events from one Repository. It starts at 1 and matches the
	// order in which the mutations took effect.
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	MemoryID  string    `json:"memory_id,omitempty"`
	// Count is the number of memories removed by a delete or clear.
	Count int       `json:"count,omitempty"`
	Time  time.Time `json:"time"`
}

// NewEvent stamps a fresh event with a unique ID and the current time.
func NewEvent(typ EventType, sessionID, memoryID string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      typ,
		SessionID: sessionID,
		MemoryID:  memoryID,
		Time:      time.Now(),
	}
}

// Subscriber receives published events. It is called synchronously on the
// publishing goroutine and must not block.
type Subscriber func(Event)

// Bus fans events out to every subscriber.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Subscriber
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Subscriber)}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers e to every current subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
