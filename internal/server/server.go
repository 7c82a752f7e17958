// Package server provides HTTP server initialization and lifecycle management
// for the simple-memory web transport.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/simple-memory/internal/api/mcp"
	"github.com/scrypster/simple-memory/internal/config"
	"github.com/scrypster/simple-memory/internal/notify"
	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/web/handlers"
)

// DefaultOriginPatterns are the cross-origin hosts allowed to open /ws.
var DefaultOriginPatterns = []string{"localhost:*", "127.0.0.1:*"}

// Deps are the components the HTTP server exposes.
type Deps struct {
	Repo    storage.Repository
	MCP     *mcp.Server
	Bus     *notify.Bus         // optional; feeds /ws when set
	Webhook *notify.WebhookSink // optional; reported by /api/health
	Logger  *log.Logger
}

// Running describes a started server.
type Running struct {
	// Addr is the address actually listened on (useful with port 0).
	Addr string
	Hub  *handlers.WebSocketHub
	// Done is closed once the server has shut down after ctx is cancelled.
	Done <-chan struct{}
}

// Handler builds the routed and wrapped handler without listening.
func Handler(cfg *config.Config, deps Deps, hub *handlers.WebSocketHub) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", handlers.NewRPCHandler(deps.MCP, deps.Logger))
	mux.Handle("/api/health", handlers.NewHealthHandler(deps.Repo, cfg.Storage.StorageEngine, hub, deps.Webhook))
	mux.Handle("/ws", hub)

	// Rate limiting first, then security headers on every response.
	rateLimiter := handlers.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	return handlers.SecurityHeadersMiddleware(handler)
}

// Start listens on cfg.Addr() and serves until ctx is cancelled, then shuts
// down gracefully.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (*Running, error) {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	logger := deps.Logger

	hub := handlers.NewWebSocketHub(DefaultOriginPatterns, logger)
	go hub.Run()

	var unsubscribe func()
	if deps.Bus != nil {
		unsubscribe = deps.Bus.Subscribe(hub.Publish)
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		hub.Stop()
		if unsubscribe != nil {
			unsubscribe()
		}
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	// Create server with security timeouts
	srv := &http.Server{
		Handler:      Handler(cfg, deps, hub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     logger,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Printf("server error: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		if unsubscribe != nil {
			unsubscribe()
		}
		// Websocket connections are hijacked, so Shutdown does not wait on them.
		hub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown error: %v", err)
		}
	}()

	addr := listener.Addr().String()
	logger.Printf("listening on http://%s", addr)
	return &Running{Addr: addr, Hub: hub, Done: done}, nil
}
