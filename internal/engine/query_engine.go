// Package engine provides the read side of the memory server: content
// search with tag filtering and highlighting, plus read-through access to
// sessions and memories.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/pkg/types"
)

// QueryEngine answers read-only queries against a storage.Repository.
// It never mutates the repository.
type QueryEngine struct {
	repo storage.Repository
}

// NewQueryEngine creates a query engine over repo.
func NewQueryEngine(repo storage.Repository) *QueryEngine {
	return &QueryEngine{repo: repo}
}

// GetMemories returns a session's memories newest first.
func (e *QueryEngine) GetMemories(ctx context.Context, sessionID string) ([]types.Memory, error) {
	return e.repo.GetMemories(ctx, sessionID)
}

// ListSessions returns every session in creation order.
func (e *QueryEngine) ListSessions(ctx context.Context) ([]types.Session, error) {
	return e.repo.ListSessions(ctx)
}

// Search finds memories whose content contains q.Query, optionally narrowed
// to one session and filtered by tags.
//
// Checks run in order: the trimmed query must be non-empty
// (types.ErrEmptyQuery), then a supplied session must exist
// (types.ErrSessionNotFound).
func (e *QueryEngine) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Query))
	if needle == "" {
		return nil, types.ErrEmptyQuery
	}

	scope := ScopeAllSessions
	if q.SessionID != "" {
		s, err := e.repo.GetSession(ctx, q.SessionID)
		if err != nil {
			return nil, err
		}
		scope = fmt.Sprintf("session '%s'", s.Name)
	}

	universe, err := e.repo.Snapshot(ctx, q.SessionID)
	if err != nil {
		return nil, err
	}

	var matched []types.Memory
	for _, m := range universe {
		if !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		if !m.HasAnyTag(q.Tags) {
			continue
		}
		matched = append(matched, m)
	}
	storage.NewestFirst(matched)

	names, err := e.sessionNames(ctx)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Query: q.Query,
		Scope: scope,
		Tags:  types.CopyTags(q.Tags),
		Hits:  make([]SearchHit, 0, len(matched)),
	}
	for _, m := range matched {
		name, ok := names[m.SessionID]
		if !ok {
			name = UnknownSessionName
		}
		result.Hits = append(result.Hits, SearchHit{
			Memory:      m,
			SessionName: name,
			Highlighted: Highlight(m.Content, q.Query),
		})
	}
	return result, nil
}

func (e *QueryEngine) sessionNames(ctx context.Context) (map[string]string, error) {
	sessions, err := e.repo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(sessions))
	for _, s := range sessions {
		names[s.ID] = s.Name
	}
	return names, nil
}

// Highlight wraps every case-insensitive, non-overlapping occurrence of
// query in content with "**", scanning left to right. The replacement uses
// the query's own casing. An empty query returns content unchanged.
func Highlight(content, query string) string {
	if query == "" {
		return content
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(query))
	return re.ReplaceAllLiteralString(content, "**"+query+"**")
}
