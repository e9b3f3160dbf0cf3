// Package main provides the exq scheduler process: the core poll loop that
// promotes due schedule/retry entries, plus the optional cron-based
// recurring schedule layer.
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
	"github.com/arlojenkins/exq/internal/queue"
	"github.com/arlojenkins/exq/internal/scheduler"
	"github.com/redis/go-redis/v9"
)

func connectWithRetry(ctx context.Context, cfg *config.Config, maxRetries int, log logger.Logger) (*queue.Queue, error) {
	var q *queue.Queue
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err = queue.Connect(ctx, cfg.RedisAddr(), cfg.RedisDB, cfg.RedisPassword, queue.Options{Namespace: cfg.Namespace})
		if err == nil {
			return q, nil
		}

		// #nosec G115 - attempt is bounded by maxRetries, overflow not possible
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		log.Warn("failed to connect to Redis, retrying", "attempt", attempt+1, "max_attempts", maxRetries, "error", err, "retry_in", delay)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

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

	schedulerLog := log.WithComponent(logger.ComponentScheduler).WithSource(logger.LogSourceInternal)
	schedulerLog.Info("scheduler starting", "redis_addr", cfg.RedisAddr(), "poll_timeout", cfg.SchedulerPollTimeout)

	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6062"
	}
	go func() {
		schedulerLog.Info("starting pprof server", "port", pprofPort)
		server := &http.Server{
			Addr:              ":" + pprofPort,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil {
			schedulerLog.Error("pprof server failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := connectWithRetry(ctx, cfg, 5, schedulerLog)
	if err != nil {
		schedulerLog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := q.Close(); err != nil {
			schedulerLog.Error("failed to close queue connection", "error", err)
		}
	}()
	schedulerLog.Info("connected to Redis")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr(), DB: cfg.RedisDB, Password: cfg.RedisPassword})
	defer func() {
		if err := redisClient.Close(); err != nil {
			schedulerLog.Error("failed to close Redis client", "error", err)
		}
	}()

	poller := scheduler.NewPoller(q, cfg.SchedulerPollTimeout)
	go poller.Run(ctx)

	registry := scheduler.NewRegistry()
	// TODO: register recurring schedules here, e.g.:
	// registry.MustRegister(&scheduler.Schedule{
	// 	ID:      "daily-report",
	// 	Cron:    "0 0 * * *",
	// 	Queue:   "default",
	// 	Class:   "ReportWorker",
	// 	Enabled: true,
	// })

	cronScheduler := scheduler.NewCronScheduler(registry, q, redisClient, cfg.SchedulerPollTimeout)
	schedulerLog.Info("cron scheduler initialized", "schedules", registry.Count())
	go cronScheduler.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	schedulerLog.Info("received shutdown signal, initiating graceful shutdown", "signal", sig)
	cancel()
	time.Sleep(2 * time.Second)
	schedulerLog.Info("scheduler shut down successfully")
}
