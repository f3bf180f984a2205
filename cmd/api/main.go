// Package main is the entry point for the chatforge API server.
//
// It loads configuration, connects the Postgres pool, constructs the external
// provider clients (auth, Stripe, PayPal, Gemini), wires the domain handlers
// onto the core chassis, and serves HTTP with graceful shutdown on SIGINT and
// SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatforge/internal/api/handlers"
	"chatforge/internal/config"
	"chatforge/internal/core"
	"chatforge/internal/db"
	"chatforge/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("chatforge API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	// Repositories share the pool via the DBTX interface.
	profileRepo := db.NewProfileRepository(pool)
	orderRepo := db.NewPayPalOrderRepository(pool)
	paymentRepo := db.NewPaymentRepository(pool)
	chatRepo := db.NewChatMessageRepository(pool)

	// External provider clients.
	authClient := external.NewAuthClient(cfg.Auth)
	stripeClient := external.NewStripeClient(cfg.Billing, cfg.Server.AppURL)
	stripeVerifier := external.NewStripeVerifier(cfg.Billing.StripeWebhookSecret)
	paypalClient := external.NewPayPalClient(cfg.Billing)
	geminiClient := external.NewGeminiClient(cfg.AI)

	srv, err := core.NewServer(cfg, logger, authClient)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}

	profileHandler := handlers.NewProfileHandler(profileRepo, logger)
	chatHandler := handlers.NewChatHandler(profileRepo, geminiClient, chatRepo, logger)
	billingHandler := handlers.NewBillingHandler(profileRepo, stripeClient, logger)
	paypalHandler := handlers.NewPayPalHandler(profileRepo, orderRepo, paymentRepo, paypalClient, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(stripeVerifier, profileRepo, paymentRepo, logger)
	adminHandler := handlers.NewAdminHandler(profileRepo, paymentRepo, chatRepo, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		profileHandler.RegisterRoutes,
		chatHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		paypalHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		adminHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// dbProbe reports database reachability for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// newLogger creates a structured JSON logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
