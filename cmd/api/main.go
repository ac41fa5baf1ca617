package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loopcast.media/loopcast/cmd/api/internal/web"
	"loopcast.media/loopcast/internal/application"
	"loopcast.media/loopcast/internal/config"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
	"loopcast.media/loopcast/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting api service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.DatabaseRetries <= 0 {
		conf.DatabaseRetries = 10
	}

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		os.Exit(1)
	}
	defer dbc.Close()

	blobs, err := storage.NewBlobStore(ctx, *conf)
	if err != nil {
		slog.Error("failed to create blob store", "error", err)
		os.Exit(1)
	}

	// Status-change fanout: notifications from any process land on the
	// Postgres channel and are bridged into the in-process hub for SSE.
	hub := ingest.NewHub()
	go ingest.ListenStatusChanges(ctx, conf.DatabaseDSN, hub)

	e, err := web.NewWebserver(*conf, dbc, blobs, hub)
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	addr := e.Addr()
	slog.Info("Listening", "addr", addr)
	if err := e.Start(addr); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Echo returns an error on Shutdown; treat it as normal if context is done.
		if ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
