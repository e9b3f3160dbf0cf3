package result

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/arlojenkins/exq/internal/job"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier implements Notifier using Redis hashes for storage and
// pub/sub for wake-up, under a configurable namespace.
type RedisNotifier struct {
	client     *redis.Client
	namespace  string
	successTTL time.Duration
	failureTTL time.Duration
}

// NewRedisNotifier creates a namespaced Redis-backed completion notifier.
func NewRedisNotifier(client *redis.Client, namespace string, successTTL, failureTTL time.Duration) *RedisNotifier {
	if namespace == "" {
		namespace = "exq"
	}
	return &RedisNotifier{client: client, namespace: namespace, successTTL: successTTL, failureTTL: failureTTL}
}

func (r *RedisNotifier) key(jid string) string {
	return fmt.Sprintf("%s:result:%s", r.namespace, jid)
}

func (r *RedisNotifier) channel(jid string) string {
	return fmt.Sprintf("%s:result:notify:%s", r.namespace, jid)
}

// StoreOutcome persists a job outcome and publishes a wake-up to the jid's
// notification channel in the same pipeline.
func (r *RedisNotifier) StoreOutcome(ctx context.Context, outcome *job.Outcome) error {
	data := map[string]interface{}{
		"success":      outcome.Success,
		"completed_at": outcome.CompletedAt.Format(time.RFC3339),
		"duration_ms":  outcome.Duration.Milliseconds(),
	}
	if outcome.Success && len(outcome.Result) > 0 {
		data["result"] = string(outcome.Result)
	}
	if !outcome.Success && outcome.Error != "" {
		data["error"] = outcome.Error
	}

	ttl := r.successTTL
	if !outcome.Success {
		ttl = r.failureTTL
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.key(outcome.JID), data)
	pipe.Expire(ctx, r.key(outcome.JID), ttl)
	pipe.Publish(ctx, r.channel(outcome.JID), "ready")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store outcome: %w", err)
	}
	return nil
}

// GetOutcome retrieves a stored outcome, or nil if not present.
func (r *RedisNotifier) GetOutcome(ctx context.Context, jid string) (*job.Outcome, error) {
	data, err := r.client.HGetAll(ctx, r.key(jid)).Result()
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	out := &job.Outcome{JID: jid}
	if v, ok := data["success"]; ok {
		out.Success = v == "1" || v == "true"
	}
	if v, ok := data["completed_at"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.CompletedAt = t
		}
	}
	if v, ok := data["duration_ms"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			out.Duration = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := data["result"]; ok {
		out.Result = json.RawMessage(v)
	}
	if v, ok := data["error"]; ok {
		out.Error = v
	}
	return out, nil
}

// WaitForOutcome blocks on the jid's notification channel until an
// outcome appears or timeout elapses.
func (r *RedisNotifier) WaitForOutcome(ctx context.Context, jid string, timeout time.Duration) (*job.Outcome, error) {
	if existing, err := r.GetOutcome(ctx, jid); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pubsub := r.client.Subscribe(waitCtx, r.channel(jid))
	defer pubsub.Close()

	select {
	case <-waitCtx.Done():
		return r.GetOutcome(ctx, jid)
	case msg := <-pubsub.Channel():
		if msg != nil {
			return r.GetOutcome(ctx, jid)
		}
	}
	return nil, nil
}

// DeleteOutcome removes a stored outcome.
func (r *RedisNotifier) DeleteOutcome(ctx context.Context, jid string) error {
	if err := r.client.Del(ctx, r.key(jid)).Err(); err != nil {
		return fmt.Errorf("delete outcome: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *RedisNotifier) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
