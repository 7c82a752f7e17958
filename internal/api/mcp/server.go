package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/scrypster/simple-memory/internal/engine"
	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/pkg/types"
)

// Server identity reported during the initialize handshake.
const (
	ServerName      = "simple-memory"
	ServerVersion   = "0.1.0"
	ProtocolVersion = "2024-11-05"
)

// ErrUnknownTool is returned when a call names a tool outside the catalog.
// It aborts the request with ErrCodeMethodNotFound.
var ErrUnknownTool = errors.New("unknown tool")

// paramsError marks arguments that could not be decoded into the tool's
// argument struct.
type paramsError struct {
	err error
}

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

// Server implements the Model Context Protocol (MCP) for simple-memory.
// Writes go to the repository; reads go through the query engine.
type Server struct {
	repo   storage.Repository
	query  *engine.QueryEngine
	logger *log.Logger
	debug  bool
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger overrides the stderr logger.
func WithLogger(l *log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithDebug enables per-call logging of tool name and duration.
func WithDebug(enabled bool) ServerOption {
	return func(s *Server) {
		s.debug = enabled
	}
}

// NewServer creates a new MCP server over repo. The query engine must read
// from the same repository.
//
//	srv := mcp.NewServer(repo, engine.NewQueryEngine(repo))
func NewServer(repo storage.Repository, query *engine.QueryEngine, opts ...ServerOption) *Server {
	s := &Server{
		repo:   repo,
		query:  query,
		logger: log.New(os.Stderr, "simple-memory-mcp: ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleRequest processes a JSON-RPC 2.0 request and returns a response.
// A nil response with a nil error means the request was a notification and
// nothing must be written back.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	// Standard MCP protocol methods
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized", "notifications/initialized":
		if req.ID == nil {
			return nil, nil
		}
		result = map[string]interface{}{}
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result = MCPToolsListResult{Tools: Tools()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)

	// Native JSON-RPC methods: the tool name is the method, params are the
	// arguments.
	case ToolCreateSession, ToolListSessions, ToolDeleteSession, ToolAddMemory,
		ToolGetMemories, ToolRemoveMemory, ToolClearSession, ToolSearchMemories:
		result, err = s.CallTool(ctx, req.Method, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.failureResponse(req.ID, err)
	}
	return s.successResponse(req.ID, result)
}

// CallTool runs the named tool with raw JSON-decoded arguments. Domain
// errors are rendered into the returned result; the returned error is
// reserved for unknown tools, undecodable arguments and repository failures.
func (s *Server) CallTool(ctx context.Context, name string, params interface{}) (*MCPToolCallResult, error) {
	start := time.Now()
	if s.debug {
		defer func() {
			s.logger.Printf("tool %s took %s", name, time.Since(start))
		}()
	}

	switch name {
	case ToolCreateSession:
		var args CreateSessionArgs
		if err := s.unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.CreateSession(ctx, args)
	case ToolListSessions:
		return s.ListSessions(ctx)
	case ToolDeleteSession:
		var args DeleteSessionArgs
		if err := s.unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.DeleteSession(ctx, args)
	case ToolAddMemory:
		var args AddMemoryArgs
		if err := s.unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.AddMemory(ctx, args)
	case ToolGetMemories:
		var args GetMemoriesArgs
		if err := s.unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.GetMemories(ctx, args)
	case ToolRemoveMemory:
		var args RemoveMemoryArgs
		if err := s.unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.RemoveMemory(ctx, args)
	case ToolClearSession:
		var args ClearSessionArgs
		if err := s.unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.ClearSession(ctx, args)
	case ToolSearchMemories:
		var args SearchMemoriesArgs
		if err := s.unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.SearchMemories(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// CreateSession creates an empty session.
func (s *Server) CreateSession(ctx context.Context, args CreateSessionArgs) (*MCPToolCallResult, error) {
	session, err := s.repo.CreateSession(ctx, args.Name)
	if err != nil {
		return s.domainOrFail(opSessionCreation, "Session ID", err)
	}
	return renderSessionCreated(session), nil
}

// ListSessions lists every session in creation order.
func (s *Server) ListSessions(ctx context.Context) (*MCPToolCallResult, error) {
	sessions, err := s.query.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return renderSessionList(sessions), nil
}

// DeleteSession removes a session and all its memories.
func (s *Server) DeleteSession(ctx context.Context, args DeleteSessionArgs) (*MCPToolCallResult, error) {
	session, removed, err := s.repo.DeleteSession(ctx, args.SessionID)
	if err != nil {
		return s.domainOrFail(opSessionDeletion, "Session ID", err)
	}
	return renderSessionDeleted(session, removed), nil
}

// AddMemory stores a memory in an existing session.
func (s *Server) AddMemory(ctx context.Context, args AddMemoryArgs) (*MCPToolCallResult, error) {
	m, session, err := s.repo.AddMemoryWithSession(ctx, args.SessionID, args.Content, args.Tags)
	if err != nil {
		return s.domainOrFail(opMemoryAddition, "Session ID", err)
	}
	return renderMemoryAdded(m, session.Name, session.MemoryCount), nil
}

// GetMemories lists a session's memories, newest first.
func (s *Server) GetMemories(ctx context.Context, args GetMemoriesArgs) (*MCPToolCallResult, error) {
	session, err := s.repo.GetSession(ctx, args.SessionID)
	if err != nil {
		return s.domainOrFail(opMemoryRetrieval, "Session ID", err)
	}
	memories, err := s.query.GetMemories(ctx, args.SessionID)
	if err != nil {
		return s.domainOrFail(opMemoryRetrieval, "Session ID", err)
	}
	session.MemoryCount = len(memories)
	return renderMemories(session, memories), nil
}

// RemoveMemory deletes a single memory.
func (s *Server) RemoveMemory(ctx context.Context, args RemoveMemoryArgs) (*MCPToolCallResult, error) {
	m, err := s.repo.RemoveMemory(ctx, args.MemoryID)
	if err != nil {
		return s.domainOrFail(opMemoryRemoval, "Memory ID", err)
	}

	name := engine.UnknownSessionName
	if session, err := s.repo.GetSession(ctx, m.SessionID); err == nil {
		name = session.Name
	} else if !types.IsDomainError(err) {
		return nil, fmt.Errorf("failed to load session %s: %w", m.SessionID, err)
	}
	return renderMemoryRemoved(m, name), nil
}

// ClearSession removes all memories from a session but keeps the session.
func (s *Server) ClearSession(ctx context.Context, args ClearSessionArgs) (*MCPToolCallResult, error) {
	session, removed, err := s.repo.ClearSession(ctx, args.SessionID)
	if err != nil {
		return s.domainOrFail(opSessionClear, "Session ID", err)
	}
	return renderSessionCleared(session, removed), nil
}

// SearchMemories runs a content search.
func (s *Server) SearchMemories(ctx context.Context, args SearchMemoriesArgs) (*MCPToolCallResult, error) {
	res, err := s.query.Search(ctx, engine.SearchQuery{
		Query:     args.Query,
		SessionID: args.SessionID,
		Tags:      args.Tags,
	})
	if err != nil {
		return s.domainOrFail(opMemorySearch, "Session ID", err)
	}
	return renderSearchResult(res), nil
}

// domainOrFail renders domain errors as a normal result and passes anything
// else through as a failure.
func (s *Server) domainOrFail(op, idLabel string, err error) (*MCPToolCallResult, error) {
	if types.IsDomainError(err) {
		return renderDomainError(op, idLabel, err), nil
	}
	return nil, err
}

// ---------------------------------------------------------------------------
// Standard MCP protocol handlers
// ---------------------------------------------------------------------------

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPInitializeParams
	if params != nil {
		if err := s.unmarshalParams(params, &p); err != nil {
			return nil, err
		}
	}
	if p.ClientInfo.Name != "" {
		s.logger.Printf("client connected: %s %s (protocol %s)", p.ClientInfo.Name, p.ClientInfo.Version, p.ProtocolVersion)
	}
	return MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
	}, nil
}

// handleToolsCall dispatches a tools/call request to the named tool.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	return s.CallTool(ctx, p.Name, p.Arguments)
}

// unmarshalParams unmarshals JSON-RPC parameters into a typed struct.
func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return &paramsError{fmt.Errorf("failed to marshal params: %w", err)}
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return &paramsError{fmt.Errorf("failed to unmarshal params: %w", err)}
	}

	return nil
}

// failureResponse maps a handler error onto its JSON-RPC error code.
func (s *Server) failureResponse(id interface{}, err error) ([]byte, error) {
	var pe *paramsError
	switch {
	case errors.Is(err, ErrUnknownTool):
		return s.errorResponse(id, ErrCodeMethodNotFound, err.Error(), nil)
	case errors.As(err, &pe):
		return s.errorResponse(id, ErrCodeInvalidParams, "Invalid params", pe.Error())
	default:
		s.logger.Printf("handler error: %v", err)
		return s.errorResponse(id, ErrCodeServerError, err.Error(), nil)
	}
}

// successResponse creates a JSON-RPC success response.
func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	return json.Marshal(resp)
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	return json.Marshal(resp)
}
