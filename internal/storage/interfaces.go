// Package storage defines the Repository contract that owns sessions and
// their memories, plus the clock and ID generator every implementation
// shares.
//
// A Repository is the only component allowed to touch the session and memory
// stores. Implementations must treat every read-then-write across the two
// stores (cascade delete, count recomputation, add, remove, clear) as a
// single atomic unit so that no caller can ever observe an orphaned memory or
// a stale MemoryCount.
package storage

import (
	"context"

	"github.com/scrypster/simple-memory/pkg/types"
)

// Repository provides the session and memory lifecycle operations.
//
// Validation happens before any lookup and the first failing check decides
// the returned error. All returned values are copies.
type Repository interface {
	// CreateSession stores a new, empty session with the trimmed name.
	// Returns types.ErrEmptyName when the trimmed name is empty.
	CreateSession(ctx context.Context, name string) (*types.Session, error)

	// GetSession returns a session with its current MemoryCount.
	GetSession(ctx context.Context, id string) (*types.Session, error)

	// ListSessions returns every session in insertion order.
	ListSessions(ctx context.Context) ([]types.Session, error)

	// DeleteSession removes the session and every memory that references it,
	// returning the removed session and the number of memories removed.
	DeleteSession(ctx context.Context, id string) (*types.Session, int, error)

	// ClearSession removes every memory of the session but keeps the session.
	// The returned session reflects the cleared state (MemoryCount == 0).
	ClearSession(ctx context.Context, id string) (*types.Session, int, error)

	// AddMemory stores trimmed content with a copy of tags under sessionID.
	// Checks run in order: session ID present, content non-blank, session
	// exists.
	AddMemory(ctx context.Context, sessionID, content string, tags []string) (*types.Memory, error)

	// AddMemoryWithSession is AddMemory that also returns the owning session
	// as it stands right after the insert. Both values come from the same
	// atomic step, so MemoryCount includes the new memory and no concurrent
	// mutation in between.
	AddMemoryWithSession(ctx context.Context, sessionID, content string, tags []string) (*types.Memory, *types.Session, error)

	// GetMemories returns the session's memories newest first. Memories with
	// equal timestamps come back in reverse insertion order.
	GetMemories(ctx context.Context, sessionID string) ([]types.Memory, error)

	// RemoveMemory deletes a single memory and returns it. The owning
	// session's count is refreshed when that session still exists.
	RemoveMemory(ctx context.Context, id string) (*types.Memory, error)

	// Snapshot returns memories in insertion order for read-only querying.
	// An empty sessionID selects every memory; otherwise the session must
	// exist. The existence check and the read are one atomic step.
	Snapshot(ctx context.Context, sessionID string) ([]types.Memory, error)

	// Stats reports store sizes.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources held by the repository.
	Close() error
}

// Stats summarises the size of both stores.
type Stats struct {
	Sessions int `json:"sessions"`
	Memories int `json:"memories"`
}
