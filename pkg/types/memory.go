package types

import "time"

// NoTags is the shared default for memories stored without tags. It is never
// handed out for mutation: stores copy tags on the way in and on the way out.
var NoTags = []string{}

// Memory is a single stored text item belonging to exactly one session.
// Memories are never mutated in place once stored.
type Memory struct {
	ID        string    `json:"id"`         // Unique identifier
	SessionID string    `json:"session_id"` // Owning session, fixed at creation
	Content   string    `json:"content"`    // Trimmed, never empty
	CreatedAt time.Time `json:"created_at"` // When the memory was stored
	Tags      []string  `json:"tags"`       // Insertion order as supplied; duplicates allowed
}

// HasAnyTag reports whether at least one of wanted appears verbatim in the
// memory's tags. Matching is case-sensitive. An empty wanted list matches
// every memory.
func (m *Memory) HasAnyTag(wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		for _, t := range m.Tags {
			if t == w {
				return true
			}
		}
	}
	return false
}

// CopyTags returns an independent copy of tags, substituting NoTags for nil.
func CopyTags(tags []string) []string {
	if len(tags) == 0 {
		return NoTags
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// Clone returns a deep copy of the memory.
func (m Memory) Clone() Memory {
	m.Tags = CopyTags(m.Tags)
	return m
}
