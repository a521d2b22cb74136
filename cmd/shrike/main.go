// Shrike - Fraud case classification and routing.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/shrike/internal/api"
	"github.com/opensource-finance/shrike/internal/audit"
	"github.com/opensource-finance/shrike/internal/bus"
	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/identity"
	"github.com/opensource-finance/shrike/internal/ledger"
	"github.com/opensource-finance/shrike/internal/pipeline"
	"github.com/opensource-finance/shrike/internal/repository"
	"github.com/opensource-finance/shrike/internal/worker"
	"github.com/opensource-finance/shrike/internal/workflow"
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
	if os.Getenv("SHRIKE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting shrike",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("SHRIKE_TIER") == "pro" {
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

	// Identity resolution and the transaction oracle
	resolver := identity.NewResolver(repo, logger)
	oracle := ledger.NewOracle(repo, cfg.Pipeline.TransferWindow)

	// Audit recorder: failures are logged, never propagated
	recorder := audit.NewRecorder(repo, busImpl, logger)

	// Assignment workflow with the role cache as L1 and the shared cache as L2
	roles := workflow.NewRoleCache(repo, cacheImpl, logger)
	machine := workflow.NewMachine(repo, roles, recorder, busImpl, logger)
	slog.Info("workflow machine initialized", "role_cache_ttl", domain.RoleCacheTTL)

	// Matching pipeline and case generators
	generators := pipeline.NewGenerators(repo, resolver, oracle, machine, recorder, busImpl, logger)
	pipe := pipeline.New(repo, resolver, oracle, generators, cfg.Pipeline, logger)
	slog.Info("matching pipeline initialized",
		"transfer_window", cfg.Pipeline.TransferWindow,
		"max_incidents", cfg.Pipeline.MaxIncidents,
	)

	// Initialize async ingest worker (Pro tier)
	var ingestWorker *worker.Worker
	if cfg.Worker.Enabled || os.Getenv("SHRIKE_ASYNC_WORKER") == "true" {
		ingestWorker = worker.NewWorker(busImpl, pipe, worker.Config{
			MaxConcurrent:   cfg.Worker.MaxConcurrent,
			EnvelopeTimeout: cfg.Pipeline.IngestTimeout,
		}, logger)

		if err := ingestWorker.Start(); err != nil {
			slog.Error("failed to start ingest worker", "error", err)
		} else {
			slog.Info("ingest worker started", "max_concurrent", cfg.Worker.MaxConcurrent)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, pipe, machine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("shrike is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop ingest worker first so in-flight envelopes drain
	if ingestWorker != nil {
		if err := ingestWorker.Stop(); err != nil {
			slog.Error("failed to stop ingest worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("shrike shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  Shrike - Case Classification & Routing Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /complaints              - Process a manual complaint")
	fmt.Println("    POST /ingest                  - Process a bank ingest envelope")
	fmt.Println("    POST /screening/accounts      - Screen newly added accounts")
	fmt.Println("    POST /screening/mobiles       - Screen telecom reverification mobiles")
	fmt.Println("    GET  /cases                   - List cases")
	fmt.Println("    GET  /cases/{id}              - Get case with match detail")
	fmt.Println("    GET  /cases/{id}/history      - Case history")
	fmt.Println("    GET  /cases/{id}/decision     - Latest decision")
	fmt.Println("    POST /cases/{id}/assign       - Assign a case")
	fmt.Println("    POST /cases/{id}/send-back    - Send back for approval")
	fmt.Println("    POST /cases/{id}/approve      - Approve department edits")
	fmt.Println("    POST /cases/{id}/reject       - Reject department edits")
	fmt.Println("    POST /cases/bulk-close        - Close cases in bulk")
	fmt.Println("    POST /cases/bulk-assign       - Assign cases in bulk")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println()
}
