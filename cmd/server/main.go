package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blockstats-server/internal/allowlist"
	"github.com/blockstats-server/internal/command"
	"github.com/blockstats-server/internal/config"
	"github.com/blockstats-server/internal/handler"
	"github.com/blockstats-server/internal/kafka"
	"github.com/blockstats-server/internal/names"
	"github.com/blockstats-server/internal/redismirror"
	"github.com/blockstats-server/internal/scanner"
	"github.com/blockstats-server/internal/snapshot"
	"github.com/blockstats-server/internal/websocket"
	"github.com/blockstats-server/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/blockstats.json", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration; a missing file is created with defaults.
	// A present-but-unreadable file or a failed default write is fatal:
	// silently running on in-memory defaults would ignore the
	// operator's config.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config file", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"command_prefix", cfg.CommandPrefix,
		"top_count", cfg.TopCount,
		"update_interval", cfg.UpdateInterval,
		"server_dir", cfg.ServerDir,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the allow-list and name resolver
	allow := allowlist.New(cfg.WhitelistPath(), logger)
	allow.Reload()

	resolver := names.NewResolver(cfg.UsercachePath(), allow, logger)
	resolver.Reload()

	// Restore the snapshot from durable storage
	store := snapshot.New(cfg.DataFile, logger)
	if err := store.Load(); err != nil {
		logger.Error("failed to load snapshot", "error", err)
		os.Exit(1)
	}

	// Initialize the scanner
	scn := scanner.New(cfg.StatsDirs(), store, allow, resolver, logger)

	// Initialize the chat bridge hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("chat bridge hub initialized")

	// Initialize the command dispatcher
	dispatcher := command.NewDispatcher(cfg, store, allow, scn, logger)

	// Bridges get fresh leaderboards after every scan that changed data
	scn.AddSink(websocket.NewNotifier(wsHub, dispatcher, cfg.TopCount, logger))

	// Optional Redis leaderboard mirror
	var mirror *redismirror.Mirror
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		mirror, err = redismirror.New(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without mirror", "error", err)
		} else {
			scn.AddSink(mirror)
			logger.Info("Redis mirror enabled")
		}
	}

	// Optional Kafka delta publisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka producer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		producer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without it", "error", err)
		} else {
			scn.AddSink(producer)
			logger.Info("Kafka delta publisher enabled")
		}
	}

	// Start the periodic scan worker
	scanWorker := worker.NewScanWorker(scn, cfg.Interval(), logger)
	if err := scanWorker.Start(ctx); err != nil {
		logger.Error("failed to start scan worker", "error", err)
		os.Exit(1)
	}

	// Run one scan up front so the leaderboards are fresh on startup
	go func() {
		if _, err := scn.RunScan(ctx); err != nil {
			logger.Warn("startup scan failed", "error", err)
		}
	}()

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(dispatcher, scn, store, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("chat bridge endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the scan worker before touching the snapshot
	if err := scanWorker.Stop(); err != nil {
		logger.Error("failed to stop scan worker", "error", err)
	}

	// Stop the chat bridge hub
	wsHub.Stop()

	// Close optional sinks
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			logger.Error("failed to close Redis mirror", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Persist the snapshot one last time before exit
	if err := store.Persist(); err != nil {
		logger.Error("failed to persist snapshot on shutdown", "error", err)
	}

	logger.Info("server stopped")
}
