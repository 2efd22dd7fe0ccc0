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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	adhttp "github.com/agentdock/agentdock/internal/adapter/http"
	adnats "github.com/agentdock/agentdock/internal/adapter/nats"
	"github.com/agentdock/agentdock/internal/adapter/natskv"
	adotel "github.com/agentdock/agentdock/internal/adapter/otel"
	adregistry "github.com/agentdock/agentdock/internal/adapter/registry"
	"github.com/agentdock/agentdock/internal/adapter/ristretto"
	"github.com/agentdock/agentdock/internal/adapter/sqlite"
	"github.com/agentdock/agentdock/internal/adapter/ws"
	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/logger"
	"github.com/agentdock/agentdock/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"sqlite_path", cfg.SQLite.Path,
		"nats_url", cfg.NATS.URL,
	)

	ctx := context.Background()

	// --- Observability ---
	otelShutdown, err := adotel.Setup(ctx, cfg.OTel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics, err := adotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// SQLite local store
	db, err := sqlite.Open(ctx, cfg.SQLite)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()
	slog.Info("sqlite opened", "path", cfg.SQLite.Path)

	store := sqlite.NewStore(db)

	// NATS: JetStream KV backs the remote registry, the stream carries
	// task dispatch for published endpoints.
	kv, nc, err := natskv.Connect(ctx, cfg.NATS.URL, cfg.NATS.Bucket)
	if err != nil {
		return fmt.Errorf("nats kv: %w", err)
	}
	defer nc.Close()

	queue, err := adnats.Connect(ctx, nc)
	if err != nil {
		return fmt.Errorf("nats stream: %w", err)
	}
	defer func() { _ = queue.Close() }()
	slog.Info("nats connected", "url", cfg.NATS.URL, "bucket", cfg.NATS.Bucket)

	// L1 read cache in front of registry reads
	l1, err := ristretto.New(cfg.Registry.L1MaxBytes)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	reg := adregistry.New(kv, l1, cfg.Registry, cfg.Breaker, metrics)
	defer reg.Close()

	// --- Services ---
	hub := ws.NewHub()
	agentSvc := service.NewAgentService(store, reg, hub)
	endpoints := service.NewEndpointManager(store, reg, queue, hub, cfg.Endpoint, metrics)
	agentSvc.SetEndpointManager(endpoints)
	syncSvc := service.NewSyncService(store, reg, hub, metrics)
	autostart := service.NewAutoStartService(syncSvc, endpoints, hub)

	endpoints.Run()

	// --- HTTP ---
	handlers := adhttp.NewHandlers(agentSvc, endpoints, syncSvc, autostart, reg)

	r := chi.NewRouter()
	r.Use(adhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(adhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.OTel.Enabled {
		r.Use(adotel.HTTPMiddleware(cfg.Logging.Service))
	}

	adhttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Endpoint servers first so clients stop receiving work, then the
	// facade, then a final registry flush so presence changes go out.
	endpoints.StopAll(shutdownCtx)
	err = srv.Shutdown(shutdownCtx)
	reg.Flush(shutdownCtx)
	return err
}
