// Package scheduler provides both the core poll loop that promotes due
// one-shot entries (C5) and a separate cron-based recurring schedule layer
// that enqueues jobs directly.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/arlojenkins/exq/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Enqueuer is the subset of *queue.Queue a CronScheduler needs to deliver a
// recurring schedule's job and to namespace its own lock/state keys the
// same way the queue namespaces its own.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, class string, args []interface{}, retry interface{}) (string, error)
	Namespace() string
}

// CronScheduler re-enqueues each registered Schedule's job when its cron
// expression is due, using a Redis lock so only one instance in a fleet
// fires a given schedule per tick.
type CronScheduler struct {
	registry  *Registry
	enqueuer  Enqueuer
	client    *redis.Client
	namespace string
	interval  time.Duration
	lockTTL   time.Duration
	log       logger.Logger
}

// NewCronScheduler creates a cron scheduler over the given schedule
// registry and enqueuer. Lock and schedule-state keys are namespaced the
// same way enqueuer namespaces its own queue keys.
func NewCronScheduler(registry *Registry, enqueuer Enqueuer, client *redis.Client, interval time.Duration) *CronScheduler {
	return &CronScheduler{
		registry:  registry,
		enqueuer:  enqueuer,
		client:    client,
		namespace: enqueuer.Namespace(),
		interval:  interval,
		lockTTL:   60 * time.Second,
		log:       logger.Default().WithComponent(logger.ComponentScheduler),
	}
}

// key builds a namespaced Redis key for this scheduler's own state,
// matching the "{namespace}:suffix" layout internal/queue uses.
func (cs *CronScheduler) key(suffix string) string {
	return cs.namespace + ":" + suffix
}

// SetLockTTL overrides the distributed lock TTL, mainly for tests.
func (cs *CronScheduler) SetLockTTL(ttl time.Duration) {
	cs.lockTTL = ttl
}

// Start begins the cron scheduler loop, blocking until ctx is cancelled.
func (cs *CronScheduler) Start(ctx context.Context) {
	cs.log.Info("cron scheduler started", "interval", cs.interval, "schedules", cs.registry.Count())

	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cs.log.Info("cron scheduler stopping")
			return
		case <-ticker.C:
			cs.tick(ctx)
		}
	}
}

func (cs *CronScheduler) tick(ctx context.Context) {
	now := time.Now()
	for _, schedule := range cs.registry.List() {
		if !schedule.Enabled {
			continue
		}
		if cs.isDue(ctx, schedule, now) {
			cs.executeSchedule(ctx, schedule, now)
		}
	}
}

func (cs *CronScheduler) isDue(ctx context.Context, schedule *Schedule, now time.Time) bool {
	state, err := cs.getState(ctx, schedule.ID)
	if err != nil {
		cs.log.Error("failed to get schedule state", "schedule_id", schedule.ID, "error", err)
		return false
	}

	nextRun, err := cs.registry.NextRun(schedule, state.LastRun)
	if err != nil {
		cs.log.Error("failed to calculate next run", "schedule_id", schedule.ID, "error", err)
		return false
	}

	return now.After(nextRun.Add(-1*time.Second)) || now.Equal(nextRun)
}

func (cs *CronScheduler) executeSchedule(ctx context.Context, schedule *Schedule, now time.Time) {
	lockKey := ScheduleLockKey(cs.namespace, schedule.ID)

	lock, err := AcquireLock(ctx, cs.client, lockKey, cs.lockTTL)
	if err != nil {
		cs.log.Error("failed to acquire schedule lock", "schedule_id", schedule.ID, "error", err)
		return
	}
	if lock == nil {
		cs.log.Debug("schedule already locked by another instance", "schedule_id", schedule.ID)
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			cs.log.Error("failed to release schedule lock", "schedule_id", schedule.ID, "error", err)
		}
	}()

	// Re-check under the lock: another instance may have fired this
	// schedule between our isDue check and acquiring the lock.
	if !cs.isDue(ctx, schedule, now) {
		return
	}

	args := make([]interface{}, len(schedule.Args))
	for i, a := range schedule.Args {
		args[i] = a
	}

	jid, err := cs.enqueuer.Enqueue(ctx, schedule.Queue, schedule.Class, args, schedule.Retry)
	if err != nil {
		cs.log.Error("failed to enqueue scheduled job", "schedule_id", schedule.ID, "class", schedule.Class, "error", err)
		if updateErr := cs.updateState(ctx, schedule.ID, &ScheduleState{ID: schedule.ID, LastRun: now, LastError: err.Error()}); updateErr != nil {
			cs.log.Warn("failed to update schedule state", "schedule_id", schedule.ID, "error", updateErr)
		}
		return
	}

	cs.log.Info("scheduled job enqueued", "schedule_id", schedule.ID, "class", schedule.Class, "jid", jid)

	nextRun, err := cs.registry.NextRun(schedule, now)
	if err != nil {
		cs.log.Error("failed to calculate next run time", "schedule_id", schedule.ID, "error", err)
		nextRun = time.Time{}
	}

	runCount := cs.incrementRunCount(ctx, schedule.ID)
	if updateErr := cs.updateState(ctx, schedule.ID, &ScheduleState{
		ID:          schedule.ID,
		LastRun:     now,
		NextRun:     nextRun,
		LastSuccess: now,
		RunCount:    runCount,
	}); updateErr != nil {
		cs.log.Warn("failed to update schedule state", "schedule_id", schedule.ID, "error", updateErr)
	}
}

func (cs *CronScheduler) getState(ctx context.Context, scheduleID string) (*ScheduleState, error) {
	key := cs.key("schedules:" + scheduleID)

	result, err := cs.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule state: %w", err)
	}
	if len(result) == 0 {
		return &ScheduleState{ID: scheduleID}, nil
	}

	state := &ScheduleState{ID: scheduleID}
	if lastRun, ok := result["last_run"]; ok && lastRun != "" {
		if parsed, err := time.Parse(time.RFC3339, lastRun); err == nil {
			state.LastRun = parsed
		}
	}
	if nextRun, ok := result["next_run"]; ok && nextRun != "" {
		if parsed, err := time.Parse(time.RFC3339, nextRun); err == nil {
			state.NextRun = parsed
		}
	}
	if lastSuccess, ok := result["last_success"]; ok && lastSuccess != "" {
		if parsed, err := time.Parse(time.RFC3339, lastSuccess); err == nil {
			state.LastSuccess = parsed
		}
	}
	if lastError, ok := result["last_error"]; ok {
		state.LastError = lastError
	}
	if runCount, ok := result["run_count"]; ok && runCount != "" {
		var count int64
		if _, err := fmt.Sscanf(runCount, "%d", &count); err == nil {
			state.RunCount = count
		}
	}
	return state, nil
}

func (cs *CronScheduler) updateState(ctx context.Context, scheduleID string, state *ScheduleState) error {
	key := cs.key("schedules:" + scheduleID)

	fields := map[string]interface{}{
		"last_run": state.LastRun.Format(time.RFC3339),
	}
	if !state.NextRun.IsZero() {
		fields["next_run"] = state.NextRun.Format(time.RFC3339)
	}
	if !state.LastSuccess.IsZero() {
		fields["last_success"] = state.LastSuccess.Format(time.RFC3339)
	}
	if state.LastError != "" {
		fields["last_error"] = state.LastError
	} else {
		cs.client.HDel(ctx, key, "last_error")
	}

	return cs.client.HSet(ctx, key, fields).Err()
}

func (cs *CronScheduler) incrementRunCount(ctx context.Context, scheduleID string) int64 {
	key := cs.key("schedules:" + scheduleID)
	count, err := cs.client.HIncrBy(ctx, key, "run_count", 1).Result()
	if err != nil {
		cs.log.Error("failed to increment run count", "schedule_id", scheduleID, "error", err)
		return 0
	}
	return count
}

// GetState retrieves the current state of a schedule, for monitoring.
func (cs *CronScheduler) GetState(ctx context.Context, scheduleID string) (*ScheduleState, error) {
	return cs.getState(ctx, scheduleID)
}
