package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/storyloom/storyloom-orchestrator/internal/generation"
	"github.com/storyloom/storyloom-orchestrator/internal/history"
	"github.com/storyloom/storyloom-orchestrator/internal/pkg/config"
	"github.com/storyloom/storyloom-orchestrator/internal/registration"
	"github.com/storyloom/storyloom-orchestrator/internal/server"
	"github.com/storyloom/storyloom-orchestrator/internal/telemetry"
	"github.com/storyloom/storyloom-orchestrator/pkg/orchestrator"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer("storyloom-orchestrator", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Register built-in backend factories before wiring the registry
	registration.RegisterBuiltins()

	registry, err := registration.BuildRegistry(cfg)
	if err != nil {
		log.Fatalf("Failed to build backend registry: %v", err)
	}

	opts, err := orchestratorOptions(cfg, logger)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var store *history.Store
	switch cfg.Storage.Type {
	case "sqlite":
		path := cfg.Storage.SQLite.Path
		if path == "" {
			path = "./data/history.db"
		}
		store, err = history.New(path)
		if err != nil {
			log.Fatalf("Failed to open history store: %v", err)
		}
		defer store.Close()
		opts = append(opts, orchestrator.WithRecorder(store))
		logger.Info("history storage enabled", slog.String("path", path))
	case "memory":
		opts = append(opts, orchestrator.WithRecorder(history.NewMemoryRecorder()))
	case "none", "":
	default:
		log.Fatalf("Unknown storage type: %s", cfg.Storage.Type)
	}

	orch := orchestrator.New(registry, opts...)

	handlers := server.NewHandlers(orch, registry, logger)
	srv := server.New(cfg.Server.Port, logger, handlers)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	case <-sigChan:
	}

	logger.Info("Shutdown signal received, stopping orchestrator...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Orchestrator shutdown complete")
}

// orchestratorOptions translates static configuration into orchestrator
// options: tier ordering, per-kind timeouts, validation thresholds.
func orchestratorOptions(cfg *config.Config, logger *slog.Logger) ([]orchestrator.Option, error) {
	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}

	switch {
	case len(cfg.Selection.TierOrder) > 0:
		order, err := orchestrator.ParseTierOrder(cfg.Selection.TierOrder)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithTierOrder(order))
	case cfg.Selection.PreferCloudOverLocal:
		opts = append(opts, orchestrator.WithTierOrder(orchestrator.CloudPreferredOrder()))
	}

	textTimeout, err := cfg.Timeouts.ParseText()
	if err != nil {
		return nil, err
	}
	if textTimeout > 0 {
		opts = append(opts, orchestrator.WithKindTimeout(orchestrator.KindText, textTimeout))
	}

	audioTimeout, err := cfg.Timeouts.ParseAudio()
	if err != nil {
		return nil, err
	}
	if audioTimeout > 0 {
		opts = append(opts, orchestrator.WithKindTimeout(orchestrator.KindAudio, audioTimeout))
	}

	v := cfg.Validation
	if v.MinTextChars > 0 || v.MinAudioBytes > 0 || len(v.TextSentinels) > 0 {
		opts = append(opts, orchestrator.WithValidator(generation.NewValidator(generation.ValidatorConfig{
			MinTextChars:  v.MinTextChars,
			TextSentinels: v.TextSentinels,
			MinAudioBytes: v.MinAudioBytes,
		})))
	}

	return opts, nil
}
