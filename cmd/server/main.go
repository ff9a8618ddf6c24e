// Easely - Canvas assignment assistant for Messenger
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/easely-bot/internal/api"
	"github.com/ashureev/easely-bot/internal/canvas"
	"github.com/ashureev/easely-bot/internal/config"
	"github.com/ashureev/easely-bot/internal/conversation"
	"github.com/ashureev/easely-bot/internal/messenger"
	"github.com/ashureev/easely-bot/internal/secret"
	"github.com/ashureev/easely-bot/internal/store"
	"github.com/ashureev/easely-bot/internal/worker"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "timezone", cfg.Timezone)

	sealer := secret.NewSealer(cfg.CredentialKey)
	if !sealer.Enabled() {
		slog.Warn("CREDENTIAL_KEY not set, Canvas tokens are stored unencrypted")
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath, store.Options{
		SessionTTL: cfg.SessionTTL,
		Sealer:     sealer,
	})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Initialize services.
	records := canvas.NewService(canvas.NewClient(cfg.Canvas), repo, cfg.Canvas, cfg.Location())
	graph := messenger.NewClient(cfg.Messenger)
	if cfg.Messenger.PageAccessToken == "" {
		slog.Warn("PAGE_ACCESS_TOKEN not set, outbound messages are logged only")
	}

	scheduler := conversation.NewScheduler(30 * time.Second)
	dispatcher := conversation.New(repo, records, graph, scheduler, conversation.OptionsFromConfig(cfg))

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, cfg)
	webhookHandler := api.NewWebhookHandler(dispatcher, graph, repo, api.WebhookConfig{
		VerifyToken:       cfg.Messenger.VerifyToken,
		AppSecret:         cfg.Messenger.AppSecret,
		GetStartedPayload: conversation.CodeGetStarted,
		RatePerMinute:     cfg.RateLimitPerMinute,
	})
	setupHandler := api.NewSetupHandler(graph, cfg.Messenger.SetupToken, messenger.Profile{
		GetStartedPayload: conversation.CodeGetStarted,
		Greeting:          conversation.Greeting,
		Menu:              conversation.PersistentMenu(cfg.Conversation.UpgradeURL),
	})
	if cfg.Messenger.AppSecret == "" {
		slog.Warn("APP_SECRET not set, webhook signatures are not verified")
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	healthHandler.RegisterHealth(r)
	webhookHandler.RegisterRoutes(r)
	setupHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker.StartSweeper(ctx, repo, worker.SweeperConfig{
		Interval:     cfg.SweepInterval,
		LogRetention: cfg.MessageLogRetention,
	})

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// In-flight dispatches finish before the store closes.
	webhookHandler.Wait()
	scheduler.Close()

	slog.Info("Server stopped successfully")
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
