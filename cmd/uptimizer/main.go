package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"uptimizer/internal/api"
	"uptimizer/internal/auth"
	"uptimizer/internal/checker"
	"uptimizer/internal/config"
	"uptimizer/internal/state"
	"uptimizer/internal/stats"
	"uptimizer/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := buildLogger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded",
		zap.String("path", cfgPath),
		zap.Int("clients", len(cfg.Clients)),
		zap.Int("check_interval_seconds", cfg.Settings.CheckIntervalSeconds))

	// Canceled on SIGINT/SIGTERM; the foundation for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The history store opens degraded rather than failing the process:
	// checks still run, statistics report the store as unavailable.
	store := sqlite.Open(ctx, cfg.Database.Path, logger)
	defer store.Close()

	secret := cfg.Auth.Secret
	if secret == "" {
		// Tokens issued against an ephemeral secret die with the
		// process; fine for standalone use, not for linking.
		secret = randomSecret()
		logger.Warn("no auth secret configured, using an ephemeral one")
	}
	verifier, err := auth.NewHMACVerifier(secret)
	if err != nil {
		return err
	}

	liveState := state.New(cfg.Settings, cfg.Clients)
	runner := checker.NewRunner(liveState, store, cfg.Server.MaxConcurrency, logger)
	aggregator := stats.New(store)

	handlers := api.NewHandlers(liveState, store, aggregator, runner, verifier, cfg, cfgPath, logger)
	server := api.NewServer(cfg.Server.Port, api.NewRouter(handlers, verifier), logger)

	// One synchronous cycle before the scheduler starts, so the first
	// status query already has data.
	runner.RunCycle(ctx)
	runner.Start(ctx)
	server.Start()

	logger.Info("uptimizer is running")
	<-ctx.Done()

	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer shutdownCancel()

	runner.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown error: %w", err)
	}
	return nil
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("UPTIMIZER_DEV") != "" {
		gin.SetMode(gin.DebugMode)
		return zap.NewDevelopment()
	}
	gin.SetMode(gin.ReleaseMode)
	return zap.NewProduction()
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "uptimizer-fallback-secret"
	}
	return hex.EncodeToString(b)
}
