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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/callaudit/callaudit/internal/api"
	"github.com/callaudit/callaudit/internal/api/middleware"
	"github.com/callaudit/callaudit/internal/config"
	"github.com/callaudit/callaudit/internal/database"
	"github.com/callaudit/callaudit/internal/database/pgstore"
	"github.com/callaudit/callaudit/internal/metrics"
)

func main() {
	// Optional .env file for local development; real deployments set env vars.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to decode jwt secret", "error", err)
		os.Exit(1)
	}

	// One-shot token mint for operators; no server, no store.
	if cfg.IssueTokenFor != "" {
		token, expiresAt, err := middleware.GenerateToken(jwtSecret, cfg.IssueTokenFor)
		if err != nil {
			slog.Error("failed to issue token", "agency_id", cfg.IssueTokenFor, "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		slog.Info("issued dashboard token", "agency_id", cfg.IssueTokenFor, "expires_at", expiresAt.Format(time.RFC3339))
		return
	}

	slog.Info("starting callaudit",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"postgres", cfg.PostgresDSN != "",
	)

	// Open the store and run migrations. Postgres when a DSN is configured,
	// embedded SQLite otherwise.
	var store database.Store
	if cfg.PostgresDSN != "" {
		store, err = pgstore.New(cfg.PostgresDSN, cfg.PersistBatchSize)
	} else {
		var db *database.DB
		db, err = database.Open(cfg.DataDir)
		if err == nil {
			store = database.NewStore(db, cfg.PersistBatchSize)
		}
	}
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Storage-derived metrics are gathered at scrape time.
	collector := metrics.NewCollector(store, store, time.Now())
	if err := metrics.Registry.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("failed to register metrics collector", "error", err)
			os.Exit(1)
		}
	}

	handler, err := api.NewServer(store, cfg, jwtSecret)
	if err != nil {
		slog.Error("failed to create http server", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("callaudit stopped")
}
