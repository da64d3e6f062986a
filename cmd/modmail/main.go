package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/audit"
	"github.com/xaenox/modmail/internal/block"
	"github.com/xaenox/modmail/internal/extensions"
	"github.com/xaenox/modmail/internal/hooks"
	"github.com/xaenox/modmail/internal/ratelimit"
	"github.com/xaenox/modmail/internal/reclaim"
	"github.com/xaenox/modmail/internal/router"
	"github.com/xaenox/modmail/internal/storage"
	"github.com/xaenox/modmail/internal/thread"
	"github.com/xaenox/modmail/internal/transport/discord"
	"github.com/xaenox/modmail/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize transport
	adapter, err := discord.New(cfg.Discord.Token, logger)
	if err != nil {
		logger.Fatal("Failed to create discord adapter", zap.Error(err))
	}

	// Initialize routing core
	dispatcher := hooks.NewDispatcher(logger)
	sink := audit.NewLogSink(logger)
	blocks := block.NewRegistry(store, logger)
	limiter := ratelimit.NewLimiter(logger)
	threads := thread.NewManager(store, adapter, dispatcher, sink, logger)
	rt := router.New(store, blocks, limiter, threads, adapter, dispatcher, sink, logger)
	adapter.SetRouter(rt)

	// Optional extensions
	if cfg.OpenAI.Enabled {
		summarizer := extensions.NewSummarizer(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			store,
			logger,
		)
		extensions.Attach(dispatcher, "summarizer", summarizer)
		logger.Info("Thread summarizer extension enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background sweeps
	reclaimer := reclaim.NewReclaimer(store, threads, logger)
	go reclaimer.Run(ctx, cfg.Background.ReclaimInterval())
	go limiter.Run(ctx, cfg.Background.RateLimitSweepInterval(), cfg.Background.RateLimitRetention())

	// Start the transport
	if err := adapter.Start(ctx); err != nil {
		logger.Fatal("Failed to start discord adapter", zap.Error(err))
	}
	defer adapter.Stop()

	logger.Info("Modmail is running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
}
