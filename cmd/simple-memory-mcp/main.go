// cmd/simple-memory-mcp is the stdio entry point for the simple-memory MCP
// server.
//
// Startup sequence:
//  1. Load configuration from environment variables.
//  2. Build the repository (memory or sqlite), change-event bus and optional
//     webhook, and apply the seed file if one is configured.
//  3. Serve JSON-RPC 2.0 requests from stdin, writing responses to stdout.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/simple-memory/internal/api/mcp"
	"github.com/scrypster/simple-memory/internal/app"
	"github.com/scrypster/simple-memory/internal/config"
)

func main() {
	// Redirect the default logger to stderr so that incidental log calls
	// never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("simple-memory-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Set up a root context that is cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg, os.Stdin, os.Stdout, log.Default()); err != nil {
		// Context cancellation and stdin failures land here; both end the
		// session.
		log.Printf("transport stopped: %v", err)
	}
}

// run serves the MCP protocol on in/out until in closes or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger *log.Logger) error {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Printf("repository close error: %v", err)
		}
	}()

	logger.Println("ready, serving JSON-RPC 2.0 on stdin/stdout")
	return mcp.NewStdioTransport(a.MCP, in, out).Serve(ctx)
}
