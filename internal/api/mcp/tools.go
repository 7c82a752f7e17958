package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Tool names.
const (
	ToolCreateSession  = "create_session"
	ToolListSessions   = "list_sessions"
	ToolDeleteSession  = "delete_session"
	ToolAddMemory      = "add_memory"
	ToolGetMemories    = "get_memories"
	ToolRemoveMemory   = "remove_memory"
	ToolClearSession   = "clear_session"
	ToolSearchMemories = "search_memories"
)

// toolCatalog is built once at package init; reflection is deterministic.
var toolCatalog = []MCPTool{
	{
		Name:        ToolCreateSession,
		Description: "Create a new memory session with a given name",
		InputSchema: GenerateSchema[CreateSessionArgs](),
	},
	{
		Name:        ToolListSessions,
		Description: "List all available memory sessions",
		InputSchema: GenerateSchema[ListSessionsArgs](),
	},
	{
		Name:        ToolDeleteSession,
		Description: "Delete a session and all its memories",
		InputSchema: GenerateSchema[DeleteSessionArgs](),
	},
	{
		Name:        ToolAddMemory,
		Description: "Add a memory item to a specific session",
		InputSchema: GenerateSchema[AddMemoryArgs](),
	},
	{
		Name:        ToolGetMemories,
		Description: "Retrieve all memories from a specific session",
		InputSchema: GenerateSchema[GetMemoriesArgs](),
	},
	{
		Name:        ToolRemoveMemory,
		Description: "Remove a specific memory by its ID",
		InputSchema: GenerateSchema[RemoveMemoryArgs](),
	},
	{
		Name:        ToolClearSession,
		Description: "Remove all memories from a session (but keep the session)",
		InputSchema: GenerateSchema[ClearSessionArgs](),
	},
	{
		Name:        ToolSearchMemories,
		Description: "Search memories by content across all sessions or within a specific session",
		InputSchema: GenerateSchema[SearchMemoriesArgs](),
	},
}

// GenerateSchema derives a JSON Schema object for T's exported fields.
// Fields without omitempty are listed as required.
func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	var v T
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("mcp: marshal schema for %T: %v", v, err))
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("mcp: unmarshal schema for %T: %v", v, err))
	}
	delete(out, "$schema")

	// MCP clients expect an explicit (possibly empty) properties object.
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]interface{}{}
	}
	return out
}

// Tools returns a copy of the tool catalog.
func Tools() []MCPTool {
	out := make([]MCPTool, len(toolCatalog))
	copy(out, toolCatalog)
	return out
}
