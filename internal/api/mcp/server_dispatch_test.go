package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/simple-memory/internal/api/mcp"
)

// rpcResponse is used to parse responses from HandleRequest.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	ID interface{} `json:"id"`
}

func call(t *testing.T, srv *mcp.Server, req string) rpcResponse {
	t.Helper()
	raw, err := srv.HandleRequest(context.Background(), []byte(req))
	require.NoError(t, err)
	require.NotNil(t, raw)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func toolResult(t *testing.T, resp rpcResponse) mcp.MCPToolCallResult {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error response")
	var res mcp.MCPToolCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	return res
}

func toolsCall(name string, args string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, name, args)
}

func TestHandleRequest_Initialize(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1"}}}`)
	require.Nil(t, resp.Error)

	var res mcp.MCPInitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, mcp.ProtocolVersion, res.ProtocolVersion)
	assert.Equal(t, "simple-memory", res.ServerInfo.Name)
	assert.Equal(t, "0.1.0", res.ServerInfo.Version)
	assert.NotNil(t, res.Capabilities.Tools)
	assert.EqualValues(t, 1, resp.ID)
}

func TestHandleRequest_NotificationsGetNoResponse(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, method := range []string{"notifications/initialized", "initialized"} {
		raw, err := srv.HandleRequest(context.Background(), []byte(`{"jsonrpc":"2.0","method":"`+method+`"}`))
		require.NoError(t, err)
		assert.Nil(t, raw, method)
	}

	resp := call(t, srv, `{"jsonrpc":"2.0","id":3,"method":"initialized"}`)
	assert.Nil(t, resp.Error)
}

func TestHandleRequest_PingAndToolsList(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":"p","method":"ping"}`)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "p", resp.ID)

	resp = call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, resp.Error)
	var list mcp.MCPToolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))

	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"create_session", "list_sessions", "delete_session", "add_memory",
		"get_memories", "remove_memory", "clear_session", "search_memories",
	}, names)
}

func TestHandleRequest_ProtocolErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		req  string
		code int
	}{
		{"malformed json", `{"jsonrpc":"2.0",`, mcp.ErrCodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, mcp.ErrCodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"nope"}`, mcp.ErrCodeMethodNotFound},
		{"unknown tool", toolsCall("drop_tables", `{}`), mcp.ErrCodeMethodNotFound},
		{"undecodable args", toolsCall("create_session", `{"name":42}`), mcp.ErrCodeInvalidParams},
		{"undecodable native params", `{"jsonrpc":"2.0","id":1,"method":"add_memory","params":{"session_id":["x"]}}`, mcp.ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, srv, tt.req)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestHandleRequest_UnknownToolNamesTheTool(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := call(t, srv, toolsCall("drop_tables", `{}`))
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "drop_tables")
	assert.Nil(t, resp.Result)
}

func TestToolsCall_Workflow(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()

	res := toolResult(t, call(t, srv, toolsCall("create_session", `{"name":"project_ideas"}`)))
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 2)

	sessions, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	sid := sessions[0].ID

	res = toolResult(t, call(t, srv, toolsCall("add_memory",
		fmt.Sprintf(`{"session_id":%q,"content":"Build a drawing tutorial app","tags":["app","tutorial"]}`, sid))))
	assert.Contains(t, res.Content[0].Text, "**Tags:** app, tutorial")

	res = toolResult(t, call(t, srv, toolsCall("search_memories", `{"query":"APP","tags":["tutorial"]}`)))
	require.Len(t, res.Content, 2)
	assert.Contains(t, res.Content[1].Text, "Build a drawing tutorial **APP**")

	res = toolResult(t, call(t, srv, toolsCall("list_sessions", `null`)))
	assert.Contains(t, res.Content[0].Text, "**Total Sessions:** 1")
}

func TestToolsCall_LenientTags(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()
	s, err := repo.CreateSession(ctx, "work")
	require.NoError(t, err)

	tests := []struct {
		name string
		tags string
		want []string
	}{
		{"array", `["a","b"]`, []string{"a", "b"}},
		{"json encoded string", `"[\"a\",\"b\"]"`, []string{"a", "b"}},
		{"comma separated", `"a, b ,,c"`, []string{"a", "b", "c"}},
		{"null", `null`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := repo.ClearSession(ctx, s.ID)
			require.NoError(t, err)

			toolResult(t, call(t, srv, toolsCall("add_memory",
				fmt.Sprintf(`{"session_id":%q,"content":"c","tags":%s}`, s.ID, tt.tags))))

			memories, err := repo.GetMemories(ctx, s.ID)
			require.NoError(t, err)
			require.Len(t, memories, 1)
			assert.Equal(t, tt.want, memories[0].Tags)
		})
	}
}

func TestToolsCall_MalformedTagsAreInvalidParams(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()
	s, err := repo.CreateSession(ctx, "work")
	require.NoError(t, err)

	tests := []struct {
		name string
		tool string
		args string
	}{
		{"array with a number", "add_memory", fmt.Sprintf(`{"session_id":%q,"content":"c","tags":["a",1]}`, s.ID)},
		{"array with an object", "add_memory", fmt.Sprintf(`{"session_id":%q,"content":"c","tags":[{"name":"a"}]}`, s.ID)},
		{"object", "add_memory", fmt.Sprintf(`{"session_id":%q,"content":"c","tags":{"x":1}}`, s.ID)},
		{"number", "add_memory", fmt.Sprintf(`{"session_id":%q,"content":"c","tags":42}`, s.ID)},
		{"encoded array of numbers", "add_memory", fmt.Sprintf(`{"session_id":%q,"content":"c","tags":"[1,2]"}`, s.ID)},
		{"search filter with a bool", "search_memories", `{"query":"c","tags":["a",true]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, srv, toolsCall(tt.tool, tt.args))
			require.NotNil(t, resp.Error)
			assert.Equal(t, mcp.ErrCodeInvalidParams, resp.Error.Code)
		})
	}

	memories, err := repo.GetMemories(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, memories, "rejected calls store nothing")
}

func TestNativeMethods_ReturnSameEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	viaTools := toolResult(t, call(t, srv, toolsCall("create_session", `{"name":" "}`)))
	native := toolResult(t, call(t, srv, `{"jsonrpc":"2.0","id":9,"method":"create_session","params":{"name":" "}}`))

	assert.Equal(t, viaTools, native)
	assert.Equal(t, "# Session Creation Error\n\n**Error:** Session name cannot be empty", native.Content[0].Text)
}

func TestHandleRequest_InfrastructureErrorIsServerError(t *testing.T) {
	repo := failingRepo{}
	srv := mcp.NewServer(repo, nil)

	resp := call(t, srv, toolsCall("create_session", `{"name":"x"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrCodeServerError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "backend unavailable")
}
