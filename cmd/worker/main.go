package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loopcast.media/loopcast/internal/application"
	"loopcast.media/loopcast/internal/config"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
	"loopcast.media/loopcast/internal/metrics"
	"loopcast.media/loopcast/internal/storage"
	"loopcast.media/loopcast/internal/worker"
)

const affinityWindow = "30 days"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting worker service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.DatabaseRetries <= 0 {
		conf.DatabaseRetries = 10
	}

	workDir := strings.TrimSpace(os.Getenv("WORK_DIR"))
	if workDir == "" {
		workDir = "/tmp/loopcast-work"
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

	processor, err := worker.NewFFmpegProcessor(blobs, workDir)
	if err != nil {
		slog.Error("failed to create processor", "error", err)
		os.Exit(1)
	}

	store := db.NewStore(dbc)
	stateMachine := ingest.NewStateMachine(store, blobs, nil,
		conf.JobMaxRetries, time.Duration(conf.JobBackoffBaseSecs)*time.Second)

	// Use hostname (container ID) for unique worker ID since PID is always 1 in containers
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = fmt.Sprintf("pid-%d", os.Getpid())
	}
	workerID := fmt.Sprintf("worker-%s", hostname)

	wake := make(chan struct{}, 1)
	go listenAndSignal(ctx, conf.DatabaseDSN, db.JobNotifyChannel, wake)

	workerPool := worker.NewPool(dbc.Queries(ctx), stateMachine, processor,
		workerID, time.Duration(conf.JobLeaseSeconds)*time.Second, wake)

	slog.Info("Workers started", "workers", conf.WorkerCount, "worker_id", workerID)
	for i := 0; i < conf.WorkerCount; i++ {
		go workerPool.Run(ctx)
	}

	go observeQueueDepth(ctx, dbc)
	go refreshAffinity(ctx, dbc)
	go serveMetrics(ctx, envInt("METRICS_PORT", 9090))

	<-ctx.Done()
	slog.Info("Worker service stopping")
}

// observeQueueDepth samples the queue length for the depth gauge.
func observeQueueDepth(ctx context.Context, dbc *db.DatabaseConnection) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	q := dbc.Queries(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := q.CountQueuedJobs(ctx)
			if err != nil {
				slog.Error("failed to count queued jobs", "error", err)
				continue
			}
			metrics.QueueDepth.Set(float64(depth))
		}
	}
}

// refreshAffinity periodically rebuilds viewer-creator affinity from the
// interaction log. Ranking reads whatever the last refresh produced.
func refreshAffinity(ctx context.Context, dbc *db.DatabaseConnection) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	q := dbc.Queries(ctx)
	for {
		if err := q.RefreshAffinityScores(ctx, affinityWindow); err != nil {
			slog.Error("failed to refresh affinity scores", "error", err)
		} else {
			slog.Info("refreshed affinity scores")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server failed", "error", err)
	}
}

func listenAndSignal(ctx context.Context, dsn, channel string, signalCh chan<- struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect for LISTEN", "channel", channel, "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		c, err := conn.Acquire(ctx)
		if err != nil {
			slog.Error("failed to acquire connection for LISTEN", "channel", channel, "error", err)
			conn.Close()
			time.Sleep(5 * time.Second)
			continue
		}

		_, err = c.Exec(ctx, "LISTEN "+channel)
		if err != nil {
			slog.Error("failed to LISTEN", "channel", channel, "error", err)
			c.Release()
			conn.Close()
			time.Sleep(5 * time.Second)
			continue
		}

		slog.Info("Listening for notifications", "channel", channel)

		for {
			if ctx.Err() != nil {
				c.Release()
				conn.Close()
				return
			}

			_, err := c.Conn().WaitForNotification(ctx)
			if err != nil {
				slog.Error("wait for notification failed", "channel", channel, "error", err)
				c.Release()
				conn.Close()
				break
			}

			select {
			case signalCh <- struct{}{}:
			default:
			}
		}
	}
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
