// Package main provides the exq worker process: a per-queue pool fleet
// that dequeues and executes jobs against the registered handler table.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // #nosec G108 - pprof is intentionally exposed for debugging, isolated to separate port
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arlojenkins/exq/internal/config"
	"github.com/arlojenkins/exq/internal/logger"
	"github.com/arlojenkins/exq/internal/manager"
	"github.com/arlojenkins/exq/internal/metrics"
	"github.com/arlojenkins/exq/internal/queue"
	"github.com/arlojenkins/exq/internal/result"
	"github.com/arlojenkins/exq/internal/stats"
	"github.com/arlojenkins/exq/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(log)

	workerLog := log.WithComponent(logger.ComponentPool).WithSource(logger.LogSourceInternal)
	workerLog.Info("worker starting",
		"name", cfg.Name,
		"queues", cfg.Queues,
		"concurrency", cfg.Concurrency,
		"job_timeout", cfg.GenServerTimeout,
		"redis_addr", cfg.RedisAddr())

	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6061"
	}
	go func() {
		workerLog.Info("starting pprof server", "port", pprofPort)
		server := &http.Server{
			Addr:              ":" + pprofPort,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil {
			workerLog.Error("pprof server failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := queue.Connect(ctx, cfg.RedisAddr(), cfg.RedisDB, cfg.RedisPassword, queue.Options{Namespace: cfg.Namespace})
	if err != nil {
		workerLog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := q.Close(); err != nil {
			workerLog.Error("failed to close queue connection", "error", err)
		}
	}()

	statsRegistry := stats.New(q.Client(), cfg.Namespace, log.WithComponent(logger.ComponentStats))
	notifier := result.NewRedisNotifier(q.Client(), cfg.Namespace, time.Hour, 24*time.Hour)

	registry := worker.NewRegistry()
	// TODO: register production handlers here; these are demonstration-only.
	registry.Register("count_items", worker.HandleCountItems)
	registry.Register("send_email", worker.HandleSendEmail)
	registry.Register("process_data", worker.HandleProcessData)
	workerLog.Info("registered job handlers", "count", registry.Count())

	mgr := manager.New(manager.Dependencies{
		Config:   cfg,
		Queue:    q,
		Stats:    statsRegistry,
		Registry: registry,
		Notifier: notifier,
	})

	if err := mgr.Start(ctx); err != nil {
		workerLog.Error("failed to start manager", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m := metrics.Default().GetMetrics()
				workerLog.Info("system metrics",
					"jobs_processed", m.TotalJobsProcessed,
					"jobs_completed", m.TotalJobsCompleted,
					"jobs_failed", m.TotalJobsFailed,
					"avg_duration_ms", m.AvgJobDuration.Milliseconds(),
					"worker_utilization", fmt.Sprintf("%.1f%%", m.WorkerUtilization),
					"error_rate", fmt.Sprintf("%.2f%%", m.ErrorRate),
					"uptime", m.Uptime.String())
			}
		}
	}()

	sig := <-sigChan
	workerLog.Info("received shutdown signal, initiating graceful shutdown", "signal", sig)
	cancel()
	mgr.Stop()
	workerLog.Info("worker shut down successfully")
}
