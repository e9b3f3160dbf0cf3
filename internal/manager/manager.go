// Package manager owns the lifecycle of per-queue worker pools and the
// scheduler within a single process: boot-time backup recovery, starting
// and stopping pools, and runtime subscribe/unsubscribe to queues. Multiple
// Manager instances may coexist in the same process, each with its own
// pools and registry, sharing nothing.
package manager

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/arlojenkins/exq/internal/config"
	"github.com/arlojenkins/exq/internal/logger"
	"github.com/arlojenkins/exq/internal/queue"
	"github.com/arlojenkins/exq/internal/result"
	"github.com/arlojenkins/exq/internal/scheduler"
	"github.com/arlojenkins/exq/internal/worker"
)

// Recoverer is the subset of *queue.Queue needed to drain a queue's backup
// list back onto its ready list at boot.
type Recoverer interface {
	ReEnqueueBackup(ctx context.Context, host, queueName string) (int, error)
}

// Manager owns a set of per-queue worker pools plus an optional scheduler
// poller, all bound to one handler registry and one Redis-backed queue.
type Manager struct {
	cfg      *config.Config
	q        *queue.Queue
	stats    worker.ProcessRecorder
	registry *worker.Registry
	notifier result.Notifier
	recov    Recoverer
	host     string
	pid      int
	log      logger.Logger

	mu     sync.Mutex
	pools  map[string]*worker.Pool
	poller *scheduler.Poller

	wg sync.WaitGroup
}

// Dependencies bundles everything a Manager needs beyond its own config,
// so callers assemble the shared infrastructure (queue, stats, notifier)
// once and can run several independent managers against the same process
// if desired.
type Dependencies struct {
	Config   *config.Config
	Queue    *queue.Queue
	Stats    worker.ProcessRecorder
	Registry *worker.Registry
	Notifier result.Notifier
}

// New builds a Manager from the given dependencies. Registry may already
// have handlers registered; Manager never mutates it beyond reading.
func New(deps Dependencies) *Manager {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	return &Manager{
		cfg:      deps.Config,
		q:        deps.Queue,
		stats:    deps.Stats,
		registry: deps.Registry,
		notifier: deps.Notifier,
		recov:    deps.Queue,
		host:     host,
		pid:      os.Getpid(),
		log:      logger.Default().WithComponent(logger.ComponentManager),
		pools:    make(map[string]*worker.Pool),
	}
}

// Start recovers each configured queue's orphaned backup list, then starts
// one Pool per queue and, if enabled, the scheduler poller. It does not
// block.
func (m *Manager) Start(ctx context.Context) error {
	for _, qs := range m.cfg.Queues {
		if err := m.Subscribe(ctx, qs.Name, qs.ResolvedConcurrency(m.cfg.Concurrency)); err != nil {
			return fmt.Errorf("subscribe %s: %w", qs.Name, err)
		}
	}

	if m.cfg.SchedulerEnable {
		m.poller = scheduler.NewPoller(m.q, m.cfg.SchedulerPollTimeout)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.poller.Run(ctx)
		}()
	}

	m.log.Info("manager started", "queues", len(m.pools), "scheduler_enabled", m.cfg.SchedulerEnable)
	return nil
}

// Subscribe recovers queueName's backup list and starts a pool for it, if
// one isn't already running. Safe to call after Start, for runtime
// rebalancing.
func (m *Manager) Subscribe(ctx context.Context, queueName string, concurrency int) error {
	m.mu.Lock()
	if _, exists := m.pools[queueName]; exists {
		m.mu.Unlock()
		return fmt.Errorf("already subscribed to queue %s", queueName)
	}
	m.mu.Unlock()

	recovered, err := m.recov.ReEnqueueBackup(ctx, m.host, queueName)
	if err != nil {
		return fmt.Errorf("recover backup for %s: %w", queueName, err)
	}
	if recovered > 0 {
		m.log.Warn("recovered orphaned jobs from backup", "queue", queueName, "count", recovered)
	}

	pool := worker.NewPool(worker.Config{
		QueueName:   queueName,
		Host:        m.host,
		PID:         m.pid,
		Concurrency: concurrency,
		PollTimeout: m.cfg.PollTimeout,
		JobTimeout:  m.cfg.GenServerTimeout,
		Dequeuer:    m.q,
		Stats:       m.stats,
		Registry:    m.registry,
		Notifier:    m.notifier,
	})

	m.mu.Lock()
	m.pools[queueName] = pool
	m.mu.Unlock()

	pool.Start(ctx)
	m.log.Info("subscribed to queue", "queue", queueName, "concurrency", concurrency)
	return nil
}

// Unsubscribe stops queueName's pool and removes it from the manager. Jobs
// in flight are allowed to finish; anything left in the queue's backup list
// is recovered by the next Subscribe or process restart.
func (m *Manager) Unsubscribe(queueName string) error {
	m.mu.Lock()
	pool, exists := m.pools[queueName]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("not subscribed to queue %s", queueName)
	}
	delete(m.pools, queueName)
	m.mu.Unlock()

	pool.Stop()
	m.log.Info("unsubscribed from queue", "queue", queueName)
	return nil
}

// Queues returns the names of currently subscribed queues.
func (m *Manager) Queues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	return names
}

// Stop stops every pool and waits for the scheduler poller goroutine to
// return.
func (m *Manager) Stop() {
	m.mu.Lock()
	pools := make([]*worker.Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.pools = make(map[string]*worker.Pool)
	m.mu.Unlock()

	for _, p := range pools {
		p.Stop()
	}
	m.wg.Wait()
	m.log.Info("manager stopped")
}
