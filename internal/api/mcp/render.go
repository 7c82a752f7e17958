package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/simple-memory/internal/engine"
	"github.com/scrypster/simple-memory/pkg/types"
)

// contentPreviewRunes bounds the content excerpt shown after a removal.
const contentPreviewRunes = 100

// Error headings per operation.
const (
	opSessionCreation = "Session Creation"
	opSessionDeletion = "Session Deletion"
	opMemoryAddition  = "Memory Addition"
	opMemoryRetrieval = "Memory Retrieval"
	opMemoryRemoval   = "Memory Removal"
	opSessionClear    = "Session Clear"
	opMemorySearch    = "Memory Search"
)

func textResult(blocks ...string) *MCPToolCallResult {
	content := make([]MCPToolCallContent, 0, len(blocks))
	for _, b := range blocks {
		content = append(content, MCPToolCallContent{Type: "text", Text: b})
	}
	return &MCPToolCallResult{Content: content}
}

// renderDomainError renders a validation or not-found error as a single
// block. Not-found errors also name the offending ID under idLabel.
func renderDomainError(op, idLabel string, err error) *MCPToolCallResult {
	var nf *types.NotFoundError
	if errors.As(err, &nf) {
		generic := &types.NotFoundError{Kind: nf.Kind}
		return textResult(fmt.Sprintf("# %s Error\n\n**%s:** %s\n**Error:** %s", op, idLabel, nf.ID, generic.Error()))
	}
	return textResult(fmt.Sprintf("# %s Error\n\n**Error:** %s", op, err.Error()))
}

func renderSessionCreated(s *types.Session) *MCPToolCallResult {
	return textResult(
		fmt.Sprintf("# Session Created\n\n**Session ID:** %s\n**Name:** %s\n**Created:** %s\n**Memory Count:** %d",
			s.ID, s.Name, types.FormatTimestamp(s.CreatedAt), s.MemoryCount),
		fmt.Sprintf("# Session Details\n\nSuccessfully created session '%s' with ID: `%s`", s.Name, s.ID),
	)
}

func renderSessionList(sessions []types.Session) *MCPToolCallResult {
	if len(sessions) == 0 {
		return textResult("# Sessions\n\n**Total Sessions:** 0\n\nNo sessions have been created yet.")
	}

	entries := make([]string, 0, len(sessions))
	for _, s := range sessions {
		entries = append(entries, fmt.Sprintf("- **%s** (ID: `%s`)\n  - Created: %s\n  - Memories: %d",
			s.Name, s.ID, types.FormatTimestamp(s.CreatedAt), s.MemoryCount))
	}
	return textResult(fmt.Sprintf("# Sessions\n\n**Total Sessions:** %d\n\n", len(sessions)) + strings.Join(entries, "\n\n"))
}

func renderSessionDeleted(s *types.Session, removed int) *MCPToolCallResult {
	return textResult(fmt.Sprintf("# Session Deleted\n\n**Session:** %s\n**Session ID:** %s\n**Memories Deleted:** %d\n**Status:** Successfully deleted",
		s.Name, s.ID, removed))
}

func renderMemoryAdded(m *types.Memory, sessionName string, memoryCount int) *MCPToolCallResult {
	tags := "**Tags:** None"
	if len(m.Tags) > 0 {
		tags = "**Tags:** " + strings.Join(m.Tags, ", ")
	}
	return textResult(
		fmt.Sprintf("# Memory Added\n\n**Memory ID:** %s\n**Session:** %s (%s)\n**Created:** %s\n%s\n**Memory Count:** %d",
			m.ID, sessionName, m.SessionID, types.FormatTimestamp(m.CreatedAt), tags, memoryCount),
		"# Memory Content\n\n"+m.Content,
	)
}

func renderMemories(s *types.Session, memories []types.Memory) *MCPToolCallResult {
	header := fmt.Sprintf("# Memories from '%s'\n\n**Session ID:** %s\n**Memory Count:** %d", s.Name, s.ID, len(memories))
	if len(memories) == 0 {
		return textResult(header + "\n\nNo memories found in this session.")
	}

	blocks := make([]string, 0, len(memories)+1)
	blocks = append(blocks, header)
	for i, m := range memories {
		blocks = append(blocks, fmt.Sprintf("# Memory %d\n\n**ID:** %s\n**Created:** %s%s\n\n%s",
			i+1, m.ID, types.FormatTimestamp(m.CreatedAt), inlineTags(m.Tags), m.Content))
	}
	return textResult(blocks...)
}

func renderMemoryRemoved(m *types.Memory, sessionName string) *MCPToolCallResult {
	return textResult(fmt.Sprintf("# Memory Removed\n\n**Memory ID:** %s\n**Session:** %s (%s)\n**Content:** %s\n**Status:** Successfully removed",
		m.ID, sessionName, m.SessionID, preview(m.Content)))
}

func renderSessionCleared(s *types.Session, removed int) *MCPToolCallResult {
	return textResult(fmt.Sprintf("# Session Cleared\n\n**Session:** %s\n**Session ID:** %s\n**Memories Removed:** %d\n**Status:** Session cleared but preserved",
		s.Name, s.ID, removed))
}

func renderSearchResult(r *engine.SearchResult) *MCPToolCallResult {
	filter := ""
	if len(r.Tags) > 0 {
		filter = " | Tags filter: " + strings.Join(r.Tags, ", ")
	}
	header := fmt.Sprintf("# Search Results\n\n**Query:** %s\n**Scope:** %s%s\n**Results:** %d",
		r.Query, r.Scope, filter, len(r.Hits))
	if len(r.Hits) == 0 {
		return textResult(header + "\n\nNo memories found matching your search criteria.")
	}

	blocks := make([]string, 0, len(r.Hits)+1)
	blocks = append(blocks, header)
	for i, h := range r.Hits {
		blocks = append(blocks, fmt.Sprintf("# Result %d\n\n**Memory ID:** %s\n**Session:** %s (%s)\n**Created:** %s%s\n\n%s",
			i+1, h.Memory.ID, h.SessionName, h.Memory.SessionID,
			types.FormatTimestamp(h.Memory.CreatedAt), inlineTags(h.Memory.Tags), h.Highlighted))
	}
	return textResult(blocks...)
}

func inlineTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " | Tags: " + strings.Join(tags, ", ")
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= contentPreviewRunes {
		return content
	}
	return string(runes[:contentPreviewRunes]) + "..."
}
