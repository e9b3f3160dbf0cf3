package inspection

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/arlojenkins/exq/internal/queue"
	"github.com/arlojenkins/exq/internal/stats"
	"github.com/redis/go-redis/v9"
)

func setupTestAPI(t *testing.T) (*API, *queue.Queue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(client, queue.Options{Namespace: "exq"})
	registry := stats.New(client, "exq", nil)
	return New(client, "exq", registry), q, mr
}

func TestFindFailedByJID(t *testing.T) {
	api, q, mr := setupTestAPI(t)
	defer mr.Close()
	ctx := context.Background()

	jid, _ := q.Enqueue(ctx, "default", "PerformWorker", nil, 0)
	jobs, _ := q.Dequeue(ctx, "hostA", []string{"default"})
	if err := q.RetryOrFailJob(ctx, jobs[0].Job, "boom", "RuntimeError"); err != nil {
		t.Fatalf("RetryOrFailJob() error = %v", err)
	}

	found, err := api.FindFailedByJID(ctx, jid)
	if err != nil {
		t.Fatalf("FindFailedByJID() error = %v", err)
	}
	if found == nil {
		t.Fatal("FindFailedByJID() returned nil, want a job")
	}
	if found.JID != jid {
		t.Errorf("JID = %v, want %v", found.JID, jid)
	}
}

func TestFindFailedByJID_NotFound(t *testing.T) {
	api, _, mr := setupTestAPI(t)
	defer mr.Close()

	found, err := api.FindFailedByJID(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("FindFailedByJID() error = %v", err)
	}
	if found != nil {
		t.Errorf("FindFailedByJID() = %v, want nil", found)
	}
}

func TestListProcessesAndCounts(t *testing.T) {
	api, q, mr := setupTestAPI(t)
	defer mr.Close()
	ctx := context.Background()

	registry := stats.New(mustClient(mr), "exq", nil)
	q.Enqueue(ctx, "default", "PerformWorker", nil, nil)

	processID, err := registry.RecordDequeue(ctx, "hostA", 1, "default", "jidX", 10)
	if err != nil {
		t.Fatalf("RecordDequeue() error = %v", err)
	}

	procs, err := api.ListProcesses(ctx)
	if err != nil {
		t.Fatalf("ListProcesses() error = %v", err)
	}
	if len(procs) != 1 {
		t.Fatalf("ListProcesses() = %d, want 1", len(procs))
	}

	if err := registry.RecordProcessed(ctx, "default", processID); err != nil {
		t.Fatalf("RecordProcessed() error = %v", err)
	}

	n, err := api.CountProcessed(ctx, "default")
	if err != nil {
		t.Fatalf("CountProcessed() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountProcessed() = %d, want 1", n)
	}
}

func mustClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}
