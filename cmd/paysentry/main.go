// PaySentry - Scan-time risk intelligence for everyday payments.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/paysentry/internal/api"
	"github.com/opensource-finance/paysentry/internal/bus"
	"github.com/opensource-finance/paysentry/internal/cache"
	"github.com/opensource-finance/paysentry/internal/config"
	"github.com/opensource-finance/paysentry/internal/domain"
	"github.com/opensource-finance/paysentry/internal/history"
	"github.com/opensource-finance/paysentry/internal/logging"
	"github.com/opensource-finance/paysentry/internal/repository"
	"github.com/opensource-finance/paysentry/internal/risk"
	"github.com/opensource-finance/paysentry/internal/scan"
	"github.com/opensource-finance/paysentry/internal/tracing"
	"github.com/opensource-finance/paysentry/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("starting paysentry",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
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

	// Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

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

	// Initialize Classifier with stored custom rules
	classifier, err := risk.NewClassifier(cfg.Risk, loadRulesFromDatabase(ctx, repo))
	if err != nil {
		slog.Error("failed to initialize classifier", "error", err)
		os.Exit(1)
	}
	slog.Info("classifier initialized",
		"rules_count", classifier.RulesCount(),
		"trusted_handles", len(cfg.Risk.TrustedHandles),
	)

	// Initialize scan pipeline
	histSvc := history.NewService(repo, cfg.Suggestions.HistoryLimit, cfg.Geo.HistoryLimit)
	async := cfg.Tier == domain.TierPro || os.Getenv("PAYSENTRY_ASYNC_WORKER") == "true"
	processor := scan.NewProcessor(repo, cacheImpl, busImpl, histSvc, cfg, classifier, scan.Options{
		AsyncSuggestions: async,
	})

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if async {
		asyncWorker = worker.NewWorker(busImpl, processor)
		userIDs := splitList(os.Getenv("PAYSENTRY_USERS"))

		if err := asyncWorker.Start(worker.Config{UserIDs: userIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			os.Exit(1)
		}
		slog.Info("async worker started", "user_count", len(userIDs))
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, cfg.Risk, repo, cacheImpl, busImpl, processor, histSvc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("paysentry is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("paysentry shutdown complete")
}

// loadRulesFromDatabase returns the stored custom rules.
// The built-in signals always apply; custom rules are added via POST /rules.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository) []*domain.RuleConfig {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with built-in signals only
	}

	if len(dbRules) == 0 {
		slog.Info("no custom rules in database - configure via POST /rules API")
		return nil
	}

	slog.Info("loading rules from database", "count", len(dbRules))
	return dbRules
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                PAYSENTRY                  |")
	fmt.Println("  |      Scan-time Payment Risk Engine        |")
	fmt.Println("  |        Look before you pay.               |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /scans                      - Evaluate a scanned QR code")
	fmt.Println("    GET  /scans                      - Scan history")
	fmt.Println("    POST /parse                      - Parse a payment address")
	fmt.Println("    POST /classify                   - Classify without recording")
	fmt.Println("    GET  /zones                      - List safe zones")
	fmt.Println("    POST /zones                      - Create a safe zone")
	fmt.Println("    POST /locations/check            - Check a location")
	fmt.Println("    GET  /fraud-alerts               - List fraud alerts")
	fmt.Println("    GET  /suggestions                - Suggestions for the latest scan")
	fmt.Println("    POST /suggestions/{id}/dismiss   - Dismiss a suggestion")
	fmt.Println("    GET  /favorites                  - List favorites")
	fmt.Println("    GET  /preferences                - User preferences")
	fmt.Println("    GET  /rules                      - List custom rules")
	fmt.Println("    POST /rules                      - Create a custom rule")
	fmt.Println("    POST /rules/reload               - Hot-reload rules from database")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println("    GET  /metrics                    - Prometheus metrics")
	fmt.Println()
}
