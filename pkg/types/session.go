package types

import "time"

// Session is a named container for a group of related memories.
type Session struct {
	ID        string    `json:"id"`         // Unique identifier, immutable after creation
	Name      string    `json:"name"`       // Trimmed, never empty
	CreatedAt time.Time `json:"created_at"` // When the session was created

	// MemoryCount is derived from the memory store. It always equals the
	// number of memories whose SessionID matches ID once an operation returns.
	MemoryCount int `json:"memory_count"`
}
