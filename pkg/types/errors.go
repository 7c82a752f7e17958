package types

import (
	"errors"
	"fmt"
)

// ErrorKind names a caller-correctable failure condition. Kinds are terminal:
// retrying the same call can never succeed.
type ErrorKind string

// Validation kinds: a required input was missing or blank.
const (
	EmptyName      ErrorKind = "EmptyName"
	EmptySessionID ErrorKind = "EmptySessionId"
	EmptyContent   ErrorKind = "EmptyContent"
	EmptyQuery     ErrorKind = "EmptyQuery"
	EmptyID        ErrorKind = "EmptyId"
)

// Not-found kinds: a reference named an entity that does not exist.
const (
	SessionNotFound ErrorKind = "SessionNotFound"
	MemoryNotFound  ErrorKind = "MemoryNotFound"
)

// ValidationError reports a missing or blank required input. It is always
// detected before any store lookup.
type ValidationError struct {
	Kind    ErrorKind
	Field   string // Argument name as seen by callers (e.g. "session_id")
	Message string // Human-readable description
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches any ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

// NotFoundError reports a reference to a session or memory that does not
// exist.
type NotFoundError struct {
	Kind ErrorKind
	ID   string
}

func (e *NotFoundError) Error() string {
	entity := "Session"
	if e.Kind == MemoryNotFound {
		entity = "Memory"
	}
	if e.ID == "" {
		return entity + " does not exist"
	}
	return fmt.Sprintf("%s does not exist: %s", entity, e.ID)
}

// Is matches a NotFoundError of the same kind. A target without an ID (the
// package sentinels) matches any ID.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.ID == "" || t.ID == e.ID
}

// Sentinels for errors.Is comparisons.
var (
	ErrEmptyName = &ValidationError{Kind: EmptyName, Field: "name", Message: "Session name cannot be empty"}

	ErrEmptySessionID = &ValidationError{Kind: EmptySessionID, Field: "session_id", Message: "Session ID is required"}

	ErrEmptyContent = &ValidationError{Kind: EmptyContent, Field: "content", Message: "Memory content cannot be empty"}

	ErrEmptyQuery = &ValidationError{Kind: EmptyQuery, Field: "query", Message: "Search query cannot be empty"}

	ErrEmptyID = &ValidationError{Kind: EmptyID, Field: "memory_id", Message: "Memory ID is required"}

	ErrSessionNotFound = &NotFoundError{Kind: SessionNotFound}

	ErrMemoryNotFound = &NotFoundError{Kind: MemoryNotFound}
)

// NewSessionNotFound returns a SessionNotFound error carrying id.
func NewSessionNotFound(id string) error {
	return &NotFoundError{Kind: SessionNotFound, ID: id}
}

// NewMemoryNotFound returns a MemoryNotFound error carrying id.
func NewMemoryNotFound(id string) error {
	return &NotFoundError{Kind: MemoryNotFound, ID: id}
}

// KindOf extracts the ErrorKind from a domain error anywhere in err's chain.
// ok is false for infrastructure errors.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Kind, true
	}
	return "", false
}

// IsDomainError reports whether err is a ValidationError or NotFoundError.
func IsDomainError(err error) bool {
	_, ok := KindOf(err)
	return ok
}
