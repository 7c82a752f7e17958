// Package mcp implements the Model Context Protocol (MCP) server for
// simple-memory. It exposes the session and memory operations as JSON-RPC 2.0
// tools and renders their results as Markdown text blocks.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CreateSessionArgs contains arguments for the create_session tool.
type CreateSessionArgs struct {
	Name string `json:"name" jsonschema_description:"Name for the new session"`
}

// ListSessionsArgs contains arguments for the list_sessions tool (none).
type ListSessionsArgs struct{}

// DeleteSessionArgs contains arguments for the delete_session tool.
type DeleteSessionArgs struct {
	SessionID string `json:"session_id" jsonschema_description:"ID of the session to delete"`
}

// AddMemoryArgs contains arguments for the add_memory tool.
type AddMemoryArgs struct {
	SessionID string   `json:"session_id" jsonschema_description:"ID of the session to add memory to"`
	Content   string   `json:"content" jsonschema_description:"Content of the memory to store"`
	Tags      []string `json:"tags,omitempty" jsonschema_description:"Optional tags for the memory"`
}

// UnmarshalJSON accepts tags as a JSON array, a JSON-encoded array string or
// a comma-separated string. Some MCP clients send array fields in the string
// forms.
func (a *AddMemoryArgs) UnmarshalJSON(data []byte) error {
	type Alias AddMemoryArgs
	aux := &struct {
		Tags json.RawMessage `json:"tags,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	tags, err := decodeTags(aux.Tags)
	if err != nil {
		return err
	}
	a.Tags = tags
	return nil
}

// GetMemoriesArgs contains arguments for the get_memories tool.
type GetMemoriesArgs struct {
	SessionID string `json:"session_id" jsonschema_description:"ID of the session to get memories from"`
}

// RemoveMemoryArgs contains arguments for the remove_memory tool.
type RemoveMemoryArgs struct {
	MemoryID string `json:"memory_id" jsonschema_description:"ID of the memory to remove"`
}

// ClearSessionArgs contains arguments for the clear_session tool.
type ClearSessionArgs struct {
	SessionID string `json:"session_id" jsonschema_description:"ID of the session to clear"`
}

// SearchMemoriesArgs contains arguments for the search_memories tool.
type SearchMemoriesArgs struct {
	Query     string   `json:"query" jsonschema_description:"Search query to match against memory content"`
	SessionID string   `json:"session_id,omitempty" jsonschema_description:"Optional: limit search to a specific session"`
	Tags      []string `json:"tags,omitempty" jsonschema_description:"Optional: filter by tags"`
}

// UnmarshalJSON accepts tags in the same lenient forms as AddMemoryArgs.
func (a *SearchMemoriesArgs) UnmarshalJSON(data []byte) error {
	type Alias SearchMemoriesArgs
	aux := &struct {
		Tags json.RawMessage `json:"tags,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	tags, err := decodeTags(aux.Tags)
	if err != nil {
		return err
	}
	a.Tags = tags
	return nil
}

// decodeTags turns a raw tags value into a slice. It accepts an array of
// strings, a string holding such an array, or a comma-separated string.
// Absent and null values mean no tags. Anything else is an error, so a
// malformed tag list is rejected instead of silently dropped.
func decodeTags(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var tags []string
		if err := json.Unmarshal(raw, &tags); err != nil {
			return nil, fmt.Errorf("tags must be an array of strings: %w", err)
		}
		return tags, nil
	}
	if raw[0] != '"' {
		return nil, fmt.Errorf("tags must be an array of strings or a string, got %s", raw)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(s), &tags); err != nil {
			return nil, fmt.Errorf("tags string must hold an array of strings: %w", err)
		}
		return tags, nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`  // Method name
	Params  interface{} `json:"params"`  // Method parameters
	ID      interface{} `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Must be "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method or tool not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
