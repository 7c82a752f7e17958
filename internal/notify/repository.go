package notify

import (
	"context"
	"sync"

	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/pkg/types"
)

// Repository decorates a storage.Repository, publishing an Event to the bus
// after every successful mutation. Failed mutations publish nothing.
//
// Mutations run one at a time and each publishes before the next starts, so
// subscribers see events in the order the mutations took effect: a
// memory.added never follows the session.deleted that removed its session.
// Reads pass straight through.
type Repository struct {
	storage.Repository
	bus *Bus

	mu  sync.Mutex
	seq uint64
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository wraps inner so that its mutations are published on bus.
func NewRepository(inner storage.Repository, bus *Bus) *Repository {
	return &Repository{Repository: inner, bus: bus}
}

// publish stamps e with the next sequence number. Callers hold r.mu.
func (r *Repository) publish(e Event) {
	r.seq++
	e.Seq = r.seq
	r.bus.Publish(e)
}

// CreateSession implements storage.Repository.
func (r *Repository) CreateSession(ctx context.Context, name string) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.Repository.CreateSession(ctx, name)
	if err != nil {
		return nil, err
	}
	r.publish(NewEvent(SessionCreated, s.ID, ""))
	return s, nil
}

// DeleteSession implements storage.Repository.
func (r *Repository) DeleteSession(ctx context.Context, id string) (*types.Session, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, removed, err := r.Repository.DeleteSession(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	e := NewEvent(SessionDeleted, s.ID, "")
	e.Count = removed
	r.publish(e)
	return s, removed, nil
}

// ClearSession implements storage.Repository.
func (r *Repository) ClearSession(ctx context.Context, id string) (*types.Session, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, removed, err := r.Repository.ClearSession(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	e := NewEvent(SessionCleared, s.ID, "")
	e.Count = removed
	r.publish(e)
	return s, removed, nil
}

// AddMemory implements storage.Repository.
func (r *Repository) AddMemory(ctx context.Context, sessionID, content string, tags []string) (*types.Memory, error) {
	m, _, err := r.AddMemoryWithSession(ctx, sessionID, content, tags)
	return m, err
}

// AddMemoryWithSession implements storage.Repository.
func (r *Repository) AddMemoryWithSession(ctx context.Context, sessionID, content string, tags []string) (*types.Memory, *types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, s, err := r.Repository.AddMemoryWithSession(ctx, sessionID, content, tags)
	if err != nil {
		return nil, nil, err
	}
	r.publish(NewEvent(MemoryAdded, m.SessionID, m.ID))
	return m, s, nil
}

// RemoveMemory implements storage.Repository.
func (r *Repository) RemoveMemory(ctx context.Context, id string) (*types.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.Repository.RemoveMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	r.publish(NewEvent(MemoryRemoved, m.SessionID, m.ID))
	return m, nil
}
