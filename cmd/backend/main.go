package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	configloader "github.com/hireloop/interview-capture/external/config"
	eventsimpl "github.com/hireloop/interview-capture/external/events"
	interviewimpl "github.com/hireloop/interview-capture/external/interview"
	mediaimpl "github.com/hireloop/interview-capture/external/media"
	registryimpl "github.com/hireloop/interview-capture/external/registry"
	storageimpl "github.com/hireloop/interview-capture/external/storage"
	transcriberimpl "github.com/hireloop/interview-capture/external/transcriber"
	"github.com/hireloop/interview-capture/external/ws"
	"github.com/hireloop/interview-capture/internal/config"
	"github.com/hireloop/interview-capture/internal/events"
	"github.com/hireloop/interview-capture/internal/observability"
	"github.com/hireloop/interview-capture/internal/session"
	"github.com/hireloop/interview-capture/internal/video"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "storage", cfg.StorageType)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching servers")
	run(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	observability.RegisterDI(injector)
	interviewimpl.RegisterDI(injector)
	registryimpl.RegisterDI(injector)
	storageimpl.RegisterDI(injector)
	mediaimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	eventsimpl.RegisterDI(injector)
	video.RegisterDI(injector)
	session.RegisterDI(injector)
	ws.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) {
	server, err := do.Invoke[*ws.Server](injector)
	if err != nil {
		slog.Error("failed to build realtime server", "error", err)
		os.Exit(1)
	}
	jobs, err := do.Invoke[*video.JobRunner](injector)
	if err != nil {
		slog.Error("failed to build job runner", "error", err)
		os.Exit(1)
	}
	publisher, err := do.Invoke[events.Publisher](injector)
	if err != nil {
		slog.Error("failed to build event publisher", "error", err)
		os.Exit(1)
	}

	var ready atomic.Bool
	obs := observability.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, ready.Load)

	errCh := make(chan error, 2)
	go func() {
		if err := obs.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()
	ready.Store(true)
	slog.Info("startup complete", "listen_addr", cfg.ListenAddr, "metrics_addr", cfg.MetricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		slog.Error("server failed", "error", err)
	}
	ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("realtime server shutdown failed", "error", err)
	}
	if err := jobs.Shutdown(ctx); err != nil {
		slog.Error("job runner shutdown incomplete", "error", err)
	}
	if err := publisher.Close(); err != nil {
		slog.Error("event publisher close failed", "error", err)
	}
	if err := obs.Shutdown(ctx); err != nil {
		slog.Error("observability server shutdown failed", "error", err)
	}
	slog.Info("shutdown complete")
}
