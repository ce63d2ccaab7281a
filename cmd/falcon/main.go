// Falcon - eligibility decisions and customer notifications for mobile banking.
// Copyright (c) 2025 Tamweel Digital
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tamweel-digital/falcon/internal/api"
	"github.com/tamweel-digital/falcon/internal/audit"
	"github.com/tamweel-digital/falcon/internal/bus"
	"github.com/tamweel-digital/falcon/internal/cache"
	"github.com/tamweel-digital/falcon/internal/decision"
	"github.com/tamweel-digital/falcon/internal/domain"
	"github.com/tamweel-digital/falcon/internal/filter"
	"github.com/tamweel-digital/falcon/internal/notify"
	"github.com/tamweel-digital/falcon/internal/repository"
	"github.com/tamweel-digital/falcon/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("FALCON_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting falcon",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("FALCON_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Bootstrap an API key for first run
	if key := os.Getenv("FALCON_API_KEY"); key != "" {
		if err := repo.SaveAPIKey(ctx, key, "bootstrap key"); err != nil {
			slog.Error("failed to save bootstrap api key", "error", err)
			os.Exit(1)
		}
		slog.Info("bootstrap api key registered")
	}

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Audit trail: handlers publish, the worker persists
	auditSvc := audit.New(busImpl, logger)

	auditWorker := worker.NewWorker(busImpl, repo)
	if err := auditWorker.Start(); err != nil {
		slog.Error("failed to start audit worker", "error", err)
		os.Exit(1)
	}

	// Initialize Decision Engine
	engine := decision.New(repo, auditSvc, busImpl, cfg.Decision, logger)
	slog.Info("decision engine initialized",
		"min_salary", cfg.Decision.MinSalary,
		"active_window_days", cfg.Decision.ActiveWindowDays,
	)

	// Initialize Notification Service
	compiler := filter.New(logger)
	notifier := notify.New(repo, cacheImpl, compiler, auditSvc, busImpl, cfg.Notify, logger)
	slog.Info("notification service initialized")

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, engine, notifier, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("falcon is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop audit worker first so in-flight events are drained
	if err := auditWorker.Stop(); err != nil {
		slog.Error("failed to stop audit worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("falcon shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  FALCON - digital banking decisions & notifications")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /decision/card                    - Card eligibility decision")
	fmt.Println("    POST /decision/loan                    - Loan eligibility decision")
	fmt.Println("    POST /notifications/send               - Send a notification")
	fmt.Println("    POST /notifications/list               - Read a user's inbox")
	fmt.Println("    GET  /applications/loan/{national_id}  - Latest loan application")
	fmt.Println("    GET  /applications/card/{national_id}  - Latest card application")
	fmt.Println("    GET  /health                           - Health check")
	fmt.Println()
}
