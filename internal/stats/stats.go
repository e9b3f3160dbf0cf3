// Package stats implements the durable, Redis-backed statistics and
// process registry (C4): processed/failed counters and the in-flight
// process list used for crash visibility and inspection.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arlojenkins/exq/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Registry records job outcomes and tracks in-flight processes under a
// namespace shared with internal/queue.
type Registry struct {
	client    *redis.Client
	namespace string
	log       logger.Logger
}

// New creates a stats registry over the given Redis client.
func New(client *redis.Client, namespace string, log logger.Logger) *Registry {
	if namespace == "" {
		namespace = "exq"
	}
	if log == nil {
		log = &logger.NoOpLogger{}
	}
	return &Registry{client: client, namespace: namespace, log: log}
}

func (r *Registry) key(suffix string) string { return r.namespace + ":" + suffix }

// ProcessInfo is the JSON record stored per in-flight process.
type ProcessInfo struct {
	ProcessID   string    `json:"process_id"`
	Host        string    `json:"host"`
	PID         int       `json:"pid"`
	Queue       string    `json:"queue"`
	JID         string    `json:"jid"`
	StartedAt   time.Time `json:"started_at"`
	Concurrency int       `json:"concurrency"`
}

// RecordDequeue registers a new in-flight process entry and returns its
// process_id. Called by the worker pool immediately after a successful
// dequeue.
func (r *Registry) RecordDequeue(ctx context.Context, host string, pid int, queue, jid string, concurrency int) (string, error) {
	processID := uuid.New().String()
	info := ProcessInfo{
		ProcessID:   processID,
		Host:        host,
		PID:         pid,
		Queue:       queue,
		JID:         jid,
		StartedAt:   time.Now(),
		Concurrency: concurrency,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("marshal process info: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(processID), data, 0)
	pipe.SAdd(ctx, r.key("processes"), processID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("record process: %w", err)
	}
	return processID, nil
}

// RemoveProcess deletes the process entry, called on terminal outcome.
// Failures here are observability-only per the registry's best-effort
// contract; callers should log and swallow.
func (r *Registry) RemoveProcess(ctx context.Context, processID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(processID))
	pipe.SRem(ctx, r.key("processes"), processID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove process: %w", err)
	}
	return nil
}

// RecordProcessed increments the processed counters for a successful
// completion and removes the process entry.
func (r *Registry) RecordProcessed(ctx context.Context, queue, processID string) error {
	date := time.Now().UTC().Format("2006-01-02")
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, r.key("stat:processed"))
	pipe.Incr(ctx, r.key("stat:processed:"+date))
	pipe.Incr(ctx, r.key("stat:processed_queues:"+queue))
	if processID != "" {
		pipe.Del(ctx, r.key(processID))
		pipe.SRem(ctx, r.key("processes"), processID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record processed: %w", err)
	}
	return nil
}

// RecordFailed increments the failed counters for a terminal failure and
// removes the process entry.
func (r *Registry) RecordFailed(ctx context.Context, queue, processID string) error {
	date := time.Now().UTC().Format("2006-01-02")
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, r.key("stat:failed"))
	pipe.Incr(ctx, r.key("stat:failed:"+date))
	pipe.Incr(ctx, r.key("stat:failed_queues:"+queue))
	if processID != "" {
		pipe.Del(ctx, r.key(processID))
		pipe.SRem(ctx, r.key("processes"), processID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failed: %w", err)
	}
	return nil
}

// ListProcesses returns every currently registered in-flight process.
func (r *Registry) ListProcesses(ctx context.Context) ([]ProcessInfo, error) {
	ids, err := r.client.SMembers(ctx, r.key("processes")).Result()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch process info: %w", err)
	}

	out := make([]ProcessInfo, 0, len(values))
	for i, v := range values {
		if v == nil {
			// stale set member; the process entry already expired/removed.
			r.client.SRem(ctx, r.key("processes"), ids[i])
			continue
		}
		var info ProcessInfo
		if err := json.Unmarshal([]byte(v.(string)), &info); err != nil {
			r.log.Error("dropping unparsable process entry", "process_id", ids[i], "error", err.Error())
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// CountProcessed returns the total processed count, or the per-queue
// count when queue is non-empty.
func (r *Registry) CountProcessed(ctx context.Context, queue string) (int64, error) {
	key := r.key("stat:processed")
	if queue != "" {
		key = r.key("stat:processed_queues:" + queue)
	}
	return r.intOrZero(ctx, key)
}

// CountFailed returns the total failed count, or the per-queue count when
// queue is non-empty.
func (r *Registry) CountFailed(ctx context.Context, queue string) (int64, error) {
	key := r.key("stat:failed")
	if queue != "" {
		key = r.key("stat:failed_queues:" + queue)
	}
	return r.intOrZero(ctx, key)
}

func (r *Registry) intOrZero(ctx context.Context, key string) (int64, error) {
	v, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return v, nil
}
