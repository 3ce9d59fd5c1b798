package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/worklog/internal/api"
	"github.com/ashureev/worklog/internal/chart"
	"github.com/ashureev/worklog/internal/chat"
	"github.com/ashureev/worklog/internal/config"
	"github.com/ashureev/worklog/internal/health"
	"github.com/ashureev/worklog/internal/identity"
	"github.com/ashureev/worklog/internal/middleware"
	"github.com/ashureev/worklog/internal/session"
	"github.com/ashureev/worklog/internal/stats"
	"github.com/ashureev/worklog/internal/store"
	"github.com/ashureev/worklog/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func loadPresets(cfg *config.Config) (*session.PresetTable, error) {
	if cfg.PresetsPath == "" {
		return session.DefaultPresets(), nil
	}
	return session.LoadPresets(cfg.PresetsPath)
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "timezone", cfg.Timezone)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath, cfg.Location)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(parent); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	presets, err := loadPresets(cfg)
	if err != nil {
		return err
	}

	// Initialize services.
	aggregator := stats.NewAggregator(repo, cfg.Location)
	renderer := chart.NewRenderer()
	hub := chat.NewHub()

	sessions, err := session.NewManager(session.Config{
		Notifier:         hub,
		Recorder:         repo,
		Stats:            aggregator,
		Chart:            renderer,
		Sessions:         repo,
		Presets:          presets,
		Location:         cfg.Location,
		Logger:           logger,
		ReminderInterval: cfg.ReminderInterval,
		MailboxSize:      cfg.MailboxSize,
		IdleTTL:          cfg.SessionTTL,
	})
	if err != nil {
		return fmt.Errorf("initialize session manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions.Start(ctx)
	defer sessions.Stop()

	restored, err := sessions.Restore(ctx)
	if err != nil {
		slog.Error("Failed to restore sessions", "error", err, "restored", restored)
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, aggregator, renderer, cfg.Location)
	intervalHandler, err := api.NewIntervalHandler(baseHandler)
	if err != nil {
		return fmt.Errorf("initialize interval handler: %w", err)
	}
	statsHandler := api.NewStatsHandler(baseHandler)
	sessionHandler := api.NewSessionHandler(sessions, cfg.Location)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)
	wsHandler := chat.NewWebSocketHandler(hub, sessions, cfg.AllowedOrigins, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	intervalHandler.RegisterRoutes(r)
	statsHandler.RegisterRoutes(r)

	// Session-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(!cfg.IsDevelopment()))
		sessionHandler.RegisterRoutes(r)
		r.Get("/ws/session", wsHandler.ServeHTTP)
	})

	// Serve embedded chat client (SPA catch-all).
	r.Handle("/*", web.Handler())

	// WebSocket connections are long-lived; no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 2)

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc health: %w", err)
		}
		grpcHealth := health.NewServer(repo, cfg.HealthProbeInterval, logger)
		go func() {
			if err := grpcHealth.Serve(ctx, lis); err != nil {
				errCh <- err
			}
		}()
	} else {
		slog.Info("gRPC health disabled (GRPC_PORT not set)")
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Wait for shutdown signal.
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("Server failed", "error", runErr)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return runErr
}
