package handlers

import (
	"net/http"

	"github.com/scrypster/simple-memory/internal/api/mcp"
	"github.com/scrypster/simple-memory/internal/notify"
	"github.com/scrypster/simple-memory/internal/storage"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string               `json:"status"`
	Version   string               `json:"version"`
	Engine    string               `json:"engine"`
	Sessions  int                  `json:"sessions"`
	Memories  int                  `json:"memories"`
	WSClients int                  `json:"ws_clients"`
	Webhook   *notify.WebhookStats `json:"webhook,omitempty"`
}

// HealthHandler reports liveness and store sizes.
type HealthHandler struct {
	repo    storage.Repository
	engine  string
	hub     *WebSocketHub
	webhook *notify.WebhookSink
}

// NewHealthHandler creates a health handler. hub and webhook may be nil.
func NewHealthHandler(repo storage.Repository, engine string, hub *WebSocketHub, webhook *notify.WebhookSink) *HealthHandler {
	return &HealthHandler{repo: repo, engine: engine, hub: hub, webhook: webhook}
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "repository unavailable", err)
		return
	}

	resp := HealthResponse{
		Status:   "healthy",
		Version:  mcp.ServerVersion,
		Engine:   h.engine,
		Sessions: stats.Sessions,
		Memories: stats.Memories,
	}
	if h.hub != nil {
		resp.WSClients = h.hub.ClientCount()
	}
	if h.webhook != nil {
		ws := h.webhook.Stats()
		resp.Webhook = &ws
	}
	respondJSON(w, http.StatusOK, resp)
}
