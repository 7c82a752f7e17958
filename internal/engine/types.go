package engine

import "github.com/scrypster/simple-memory/pkg/types"

// ScopeAllSessions is the scope label of a search that was not narrowed to a
// session.
const ScopeAllSessions = "all sessions"

// UnknownSessionName is reported for a hit whose session vanished between
// the search and the name lookup.
const UnknownSessionName = "Unknown"

// SearchQuery configures a content search.
type SearchQuery struct {
	// Query is matched case-insensitively as a substring of memory content.
	// It is trimmed for matching but highlighted exactly as supplied.
	Query string

	// SessionID narrows the search to one session (optional).
	SessionID string

	// Tags keeps only memories carrying at least one of these tags
	// (optional, case-sensitive).
	Tags []string
}

// SearchResult is the outcome of a search, newest hit first.
type SearchResult struct {
	// Query is the query as supplied by the caller.
	Query string

	// Scope describes the searched universe: ScopeAllSessions or
	// "session '<name>'".
	Scope string

	// Tags echoes the tag filter.
	Tags []string

	Hits []SearchHit
}

// SearchHit is one matching memory.
type SearchHit struct {
	Memory types.Memory

	// SessionName is the owning session's name at search time.
	SessionName string

	// Highlighted is the content with every occurrence of the query wrapped
	// in "**". The stored memory is unchanged.
	Highlighted string
}
