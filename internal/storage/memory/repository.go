// Package memory implements storage.Repository in process memory.
//
// Both stores live behind a single sync.RWMutex. Every mutation takes the
// write lock for its whole read-then-write span, so a concurrent AddMemory
// can never interleave with a cascade delete and leave an orphan behind.
// Everything is discarded when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/pkg/types"
)

// memoryRecord is a stored memory plus its global insertion sequence.
type memoryRecord struct {
	memory types.Memory
	seq    uint64
}

// Repository is the in-memory storage.Repository.
type Repository struct {
	mu   sync.RWMutex
	opts storage.Options

	sessions     map[string]*types.Session
	sessionOrder []string

	memories map[string]*memoryRecord
	// bySession lists each session's memory IDs in insertion order. Its
	// length is the session's MemoryCount.
	bySession map[string][]string
	nextSeq   uint64

	closed bool
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository constructs an empty repository.
func NewRepository(opts ...storage.Option) *Repository {
	return &Repository{
		opts:      storage.ApplyOptions(opts...),
		sessions:  make(map[string]*types.Session),
		memories:  make(map[string]*memoryRecord),
		bySession: make(map[string][]string),
	}
}

// CreateSession implements storage.Repository.
func (r *Repository) CreateSession(ctx context.Context, name string) (*types.Session, error) {
	trimmed, err := storage.ValidateSessionName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, storage.ErrClosed
	}

	s := &types.Session{
		ID:        r.opts.IDs.NewID(),
		Name:      trimmed,
		CreatedAt: r.opts.Clock.Now(),
	}
	r.sessions[s.ID] = s
	r.sessionOrder = append(r.sessionOrder, s.ID)
	r.bySession[s.ID] = nil

	return r.sessionLocked(s.ID), nil
}

// GetSession implements storage.Repository.
func (r *Repository) GetSession(ctx context.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, types.ErrEmptySessionID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, storage.ErrClosed
	}

	if _, ok := r.sessions[id]; !ok {
		return nil, types.NewSessionNotFound(id)
	}
	return r.sessionLocked(id), nil
}

// ListSessions implements storage.Repository.
func (r *Repository) ListSessions(ctx context.Context) ([]types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, storage.ErrClosed
	}

	out := make([]types.Session, 0, len(r.sessionOrder))
	for _, id := range r.sessionOrder {
		out = append(out, *r.sessionLocked(id))
	}
	return out, nil
}

// DeleteSession implements storage.Repository.
func (r *Repository) DeleteSession(ctx context.Context, id string) (*types.Session, int, error) {
	if id == "" {
		return nil, 0, types.ErrEmptySessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, 0, storage.ErrClosed
	}

	if _, ok := r.sessions[id]; !ok {
		return nil, 0, types.NewSessionNotFound(id)
	}

	deleted := r.sessionLocked(id)
	removed := r.dropMemoriesLocked(id)

	delete(r.sessions, id)
	delete(r.bySession, id)
	r.sessionOrder = removeID(r.sessionOrder, id)

	return deleted, removed, nil
}

// ClearSession implements storage.Repository.
func (r *Repository) ClearSession(ctx context.Context, id string) (*types.Session, int, error) {
	if id == "" {
		return nil, 0, types.ErrEmptySessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, 0, storage.ErrClosed
	}

	if _, ok := r.sessions[id]; !ok {
		return nil, 0, types.NewSessionNotFound(id)
	}

	removed := r.dropMemoriesLocked(id)
	return r.sessionLocked(id), removed, nil
}

// AddMemory implements storage.Repository.
func (r *Repository) AddMemory(ctx context.Context, sessionID, content string, tags []string) (*types.Memory, error) {
	m, _, err := r.AddMemoryWithSession(ctx, sessionID, content, tags)
	return m, err
}

// AddMemoryWithSession implements storage.Repository.
func (r *Repository) AddMemoryWithSession(ctx context.Context, sessionID, content string, tags []string) (*types.Memory, *types.Session, error) {
	trimmed, err := storage.ValidateNewMemory(sessionID, content)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, storage.ErrClosed
	}

	if _, ok := r.sessions[sessionID]; !ok {
		return nil, nil, types.NewSessionNotFound(sessionID)
	}

	rec := &memoryRecord{
		memory: types.Memory{
			ID:        r.opts.IDs.NewID(),
			SessionID: sessionID,
			Content:   trimmed,
			CreatedAt: r.opts.Clock.Now(),
			Tags:      types.CopyTags(tags),
		},
		seq: r.nextSeq,
	}
	r.nextSeq++

	r.memories[rec.memory.ID] = rec
	r.bySession[sessionID] = append(r.bySession[sessionID], rec.memory.ID)

	m := rec.memory.Clone()
	return &m, r.sessionLocked(sessionID), nil
}

// GetMemories implements storage.Repository.
func (r *Repository) GetMemories(ctx context.Context, sessionID string) ([]types.Memory, error) {
	if sessionID == "" {
		return nil, types.ErrEmptySessionID
	}

	out, err := r.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	storage.NewestFirst(out)
	return out, nil
}

// RemoveMemory implements storage.Repository.
func (r *Repository) RemoveMemory(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, types.ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, storage.ErrClosed
	}

	rec, ok := r.memories[id]
	if !ok {
		return nil, types.NewMemoryNotFound(id)
	}

	delete(r.memories, id)
	if ids, ok := r.bySession[rec.memory.SessionID]; ok {
		r.bySession[rec.memory.SessionID] = removeID(ids, id)
	}

	m := rec.memory.Clone()
	return &m, nil
}

// Snapshot implements storage.Repository.
func (r *Repository) Snapshot(ctx context.Context, sessionID string) ([]types.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, storage.ErrClosed
	}

	if sessionID != "" {
		ids, ok := r.bySession[sessionID]
		if !ok {
			return nil, types.NewSessionNotFound(sessionID)
		}
		out := make([]types.Memory, 0, len(ids))
		for _, id := range ids {
			out = append(out, r.memories[id].memory.Clone())
		}
		return out, nil
	}

	recs := make([]*memoryRecord, 0, len(r.memories))
	for _, rec := range r.memories {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]types.Memory, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.memory.Clone())
	}
	return out, nil
}

// Stats implements storage.Repository.
func (r *Repository) Stats(ctx context.Context) (storage.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return storage.Stats{}, storage.ErrClosed
	}
	return storage.Stats{Sessions: len(r.sessions), Memories: len(r.memories)}, nil
}

// Close drops both stores. Subsequent calls return storage.ErrClosed.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.sessions = nil
	r.sessionOrder = nil
	r.memories = nil
	r.bySession = nil
	return nil
}

// sessionLocked returns a copy of the session with its derived count filled
// in. Caller must hold r.mu.
func (r *Repository) sessionLocked(id string) *types.Session {
	s := *r.sessions[id]
	s.MemoryCount = len(r.bySession[id])
	return &s
}

// dropMemoriesLocked removes every memory owned by sessionID and returns how
// many were removed. Caller must hold the write lock.
func (r *Repository) dropMemoriesLocked(sessionID string) int {
	ids := r.bySession[sessionID]
	for _, id := range ids {
		delete(r.memories, id)
	}
	r.bySession[sessionID] = nil
	return len(ids)
}

// removeID returns ids without the first occurrence of id. The backing array
// is reused.
func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
