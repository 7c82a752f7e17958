package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/simple-memory/pkg/types"
)

var (
	// ErrClosed is returned by operations on a repository after Close.
	ErrClosed = errors.New("repository closed")
)

// Clock supplies creation timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies globally unique identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random (version 4) UUID strings.
type UUIDGenerator struct{}

// NewID returns a fresh UUIDv4 string.
func (UUIDGenerator) NewID() string {
	return uuid.New().String()
}

// MonotonicClock wraps a time source so that successive calls never go
// backwards, even if the wall clock is stepped. Values are truncated to
// microseconds, the resolution of types.TimestampLayout, so ties are
// possible and expected.
type MonotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewMonotonicClock returns a MonotonicClock over time.Now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

// NewMonotonicClockFrom returns a MonotonicClock over a custom time source.
// Used by tests to force ties and backwards steps.
func NewMonotonicClockFrom(now func() time.Time) *MonotonicClock {
	return &MonotonicClock{now: now}
}

// Now returns max(previous value, current time).
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().Truncate(time.Microsecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// Option configures a repository implementation.
type Option func(*Options)

// Options holds the collaborators shared by every repository implementation.
type Options struct {
	Clock Clock
	IDs   IDGenerator
}

// WithClock overrides the creation timestamp source.
func WithClock(c Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// WithIDGenerator overrides the identifier source.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Options) {
		o.IDs = g
	}
}

// ApplyOptions resolves opts over the defaults (monotonic wall clock, UUIDv4).
func ApplyOptions(opts ...Option) Options {
	o := Options{
		Clock: NewMonotonicClock(),
		IDs:   UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ValidateNewMemory runs the AddMemory input checks in their required order
// and returns the trimmed content.
func ValidateNewMemory(sessionID, content string) (string, error) {
	if sessionID == "" {
		return "", types.ErrEmptySessionID
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", types.ErrEmptyContent
	}
	return trimmed, nil
}

// ValidateSessionName returns the trimmed name or types.ErrEmptyName.
func ValidateSessionName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", types.ErrEmptyName
	}
	return trimmed, nil
}

// NewestFirst orders memories that are in ascending insertion order by
// CreatedAt descending. A stable ascending sort followed by a reversal puts
// equal timestamps in reverse insertion order.
func NewestFirst(memories []types.Memory) {
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
	for i, j := 0, len(memories)-1; i < j; i, j = i+1, j-1 {
		memories[i], memories[j] = memories[j], memories[i]
	}
}
