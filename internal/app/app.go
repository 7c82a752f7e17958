// Package app assembles the repository, change-event plumbing and MCP server
// from configuration. Both binaries start through Build.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/scrypster/simple-memory/internal/api/mcp"
	"github.com/scrypster/simple-memory/internal/config"
	"github.com/scrypster/simple-memory/internal/engine"
	"github.com/scrypster/simple-memory/internal/importer"
	"github.com/scrypster/simple-memory/internal/notify"
	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/internal/storage/memory"
	"github.com/scrypster/simple-memory/internal/storage/sqlite"
)

// App holds the wired components.
type App struct {
	// Repo publishes every successful mutation on Bus.
	Repo    storage.Repository
	Bus     *notify.Bus
	Webhook *notify.WebhookSink // nil unless a webhook URL is configured
	Query   *engine.QueryEngine
	MCP     *mcp.Server
	Seed    *importer.ImportResult // nil unless a seed path is configured
}

// OpenRepository returns an empty repository for the configured engine.
func OpenRepository(engineName string) (storage.Repository, error) {
	switch engineName {
	case config.EngineMemory:
		return memory.NewRepository(), nil
	case config.EngineSQLite:
		return sqlite.NewRepository()
	default:
		return nil, fmt.Errorf("unknown storage engine %q", engineName)
	}
}

// Build wires everything described by cfg. The webhook sink, when enabled,
// delivers until ctx is cancelled. Callers must Close the App.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}

	base, err := OpenRepository(cfg.Storage.StorageEngine)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	bus := notify.NewBus()
	a := &App{
		Repo: notify.NewRepository(base, bus),
		Bus:  bus,
	}

	// Seed before any sink subscribes so startup data is not replayed as
	// change events.
	if cfg.Seed.Path != "" {
		result, err := importer.New(a.Repo, logger).ApplyFile(ctx, cfg.Seed.Path)
		if err != nil {
			_ = base.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		for _, msg := range result.Errors {
			logger.Printf("seed: skipped %s", msg)
		}
		a.Seed = result
	}

	if cfg.Notify.WebhookURL != "" {
		a.Webhook = notify.NewWebhookSink(notify.WebhookConfig{
			URL:     cfg.Notify.WebhookURL,
			Timeout: cfg.Notify.WebhookTimeout,
			Breaker: notify.BreakerConfig{
				MaxFailures: uint32(cfg.Notify.BreakerMaxFailures),
				Timeout:     cfg.Notify.BreakerTimeout,
			},
		}, logger)
		bus.Subscribe(a.Webhook.Enqueue)
		go a.Webhook.Run(ctx)
		logger.Printf("webhook enabled: %s", cfg.Notify.WebhookURL)
	}

	a.Query = engine.NewQueryEngine(a.Repo)
	a.MCP = mcp.NewServer(a.Repo, a.Query, mcp.WithLogger(logger), mcp.WithDebug(cfg.Debug))

	logger.Printf("storage engine: %s", cfg.Storage.StorageEngine)
	return a, nil
}

// Close releases the repository.
func (a *App) Close() error {
	return a.Repo.Close()
}
