// cmd/simple-memory-web serves the simple-memory MCP tools over HTTP:
// POST /mcp for JSON-RPC, GET /api/health and a /ws change feed.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/simple-memory/internal/app"
	"github.com/scrypster/simple-memory/internal/config"
	"github.com/scrypster/simple-memory/internal/server"
)

func main() {
	log.SetPrefix("simple-memory-web: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Default(), nil); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	log.Println("shut down cleanly")
}

// run starts the HTTP server and blocks until ctx is cancelled and shutdown
// completes. ready, if set, receives the listen address once serving.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger, ready func(addr string)) error {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Printf("repository close error: %v", err)
		}
	}()

	running, err := server.Start(ctx, cfg, server.Deps{
		Repo:    a.Repo,
		MCP:     a.MCP,
		Bus:     a.Bus,
		Webhook: a.Webhook,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if ready != nil {
		ready(running.Addr)
	}

	<-running.Done
	if a.Webhook != nil {
		<-a.Webhook.Done()
	}
	return nil
}
