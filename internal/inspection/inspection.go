// Package inspection provides the read-only query surface (C9) used by
// tests and operator tooling: finding a failed job by jid, listing
// in-flight processes, and reading processed/failed counts.
package inspection

import (
	"context"
	"fmt"

	"github.com/arlojenkins/exq/internal/job"
	"github.com/arlojenkins/exq/internal/stats"
	"github.com/redis/go-redis/v9"
)

// API is the read-only inspection surface over a namespace shared with
// internal/queue and internal/stats.
type API struct {
	client    *redis.Client
	namespace string
	stats     *stats.Registry
}

// New builds an inspection API over the given Redis client, namespace,
// and stats registry.
func New(client *redis.Client, namespace string, registry *stats.Registry) *API {
	if namespace == "" {
		namespace = "exq"
	}
	return &API{client: client, namespace: namespace, stats: registry}
}

func (a *API) key(suffix string) string { return a.namespace + ":" + suffix }

// FindFailedByJID does a linear scan of the dead set looking for a job
// with a matching jid, per spec.
func (a *API) FindFailedByJID(ctx context.Context, jid string) (*job.Job, error) {
	members, err := a.client.ZRange(ctx, a.key("dead"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("scan dead set: %w", err)
	}
	for _, raw := range members {
		j, err := job.Decode([]byte(raw))
		if err != nil {
			continue
		}
		if j.JID == jid {
			return j, nil
		}
	}
	return nil, nil
}

// ListProcesses lists every currently registered in-flight process.
func (a *API) ListProcesses(ctx context.Context) ([]stats.ProcessInfo, error) {
	return a.stats.ListProcesses(ctx)
}

// CountProcessed returns the processed count, globally or per queue.
func (a *API) CountProcessed(ctx context.Context, queue string) (int64, error) {
	return a.stats.CountProcessed(ctx, queue)
}

// CountFailed returns the failed count, globally or per queue.
func (a *API) CountFailed(ctx context.Context, queue string) (int64, error) {
	return a.stats.CountFailed(ctx, queue)
}
