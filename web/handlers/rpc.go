package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/scrypster/simple-memory/internal/api/mcp"
)

// maxRequestBytes matches the stdio transport's line limit.
const maxRequestBytes = 4 * 1024 * 1024

// RPCHandler serves JSON-RPC 2.0 over HTTP: one request per POST body, one
// response per reply. Notifications are answered with 204 No Content.
type RPCHandler struct {
	server *mcp.Server
	logger *log.Logger
}

// NewRPCHandler creates a handler dispatching to srv.
func NewRPCHandler(srv *mcp.Server, logger *log.Logger) *RPCHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &RPCHandler{server: srv, logger: logger}
}

// ServeHTTP handles POST /mcp.
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	resp, err := h.server.HandleRequest(r.Context(), body)
	if err != nil {
		h.logger.Printf("handler error: %v", err)
		resp = mcp.InternalErrorResponse(body, err)
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp); err != nil {
		h.logger.Printf("write error: %v", err)
	}
}
