package manager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arlojenkins/exq/internal/config"
	"github.com/arlojenkins/exq/internal/job"
	"github.com/arlojenkins/exq/internal/queue"
	"github.com/arlojenkins/exq/internal/result"
	"github.com/arlojenkins/exq/internal/stats"
	"github.com/arlojenkins/exq/internal/worker"
	"github.com/redis/go-redis/v9"
)

func setupManager(t *testing.T, queueNames ...string) (*Manager, *queue.Queue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(client, queue.Options{Namespace: "exq"})

	specs := make([]config.QueueSpec, len(queueNames))
	for i, n := range queueNames {
		specs[i] = config.QueueSpec{Name: n, Concurrency: 2}
	}

	cfg := &config.Config{
		Queues:               specs,
		Concurrency:          2,
		PollTimeout:          10 * time.Millisecond,
		GenServerTimeout:     time.Second,
		SchedulerEnable:      false,
		SchedulerPollTimeout: 10 * time.Millisecond,
	}

	registry := worker.NewRegistry()
	registry.Register("EchoWorker", func(ctx context.Context, j *job.Job) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})

	m := New(Dependencies{
		Config:   cfg,
		Queue:    q,
		Stats:    stats.New(client, "exq", nil),
		Registry: registry,
		Notifier: result.NewRedisNotifier(client, "exq", time.Hour, time.Hour),
	})

	return m, q, mr
}

func TestManager_StartSubscribesConfiguredQueues(t *testing.T) {
	m, _, mr := setupManager(t, "default", "mailers")
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	queues := m.Queues()
	if len(queues) != 2 {
		t.Fatalf("Queues() = %v, want 2 entries", queues)
	}
}

func TestManager_Start_RecoversBackupBeforeServing(t *testing.T) {
	m, q, mr := setupManager(t, "default")
	defer mr.Close()
	ctx := context.Background()

	jid, err := q.Enqueue(ctx, "default", "EchoWorker", nil, nil)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	dequeued, err := q.Dequeue(ctx, m.host, []string{"default"})
	if err != nil || len(dequeued) != 1 {
		t.Fatalf("Dequeue() = %v, %v", dequeued, err)
	}
	_ = jid

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(runCtx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	time.Sleep(100 * time.Millisecond)

	backupLen, err := mr.List("exq:" + m.host + ":default:backup")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backupLen) != 0 {
		t.Errorf("backup list = %v, want empty after recovery", backupLen)
	}
}

func TestManager_SubscribeDuplicateErrors(t *testing.T) {
	m, _, mr := setupManager(t, "default")
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	if err := m.Subscribe(ctx, "default", 2); err == nil {
		t.Error("Subscribe() duplicate error = nil, want error")
	}
}

func TestManager_SubscribeUnsubscribe(t *testing.T) {
	m, _, mr := setupManager(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	if err := m.Subscribe(ctx, "reports", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if len(m.Queues()) != 1 {
		t.Fatalf("Queues() = %v, want 1", m.Queues())
	}

	if err := m.Unsubscribe("reports"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if len(m.Queues()) != 0 {
		t.Fatalf("Queues() = %v, want 0 after unsubscribe", m.Queues())
	}

	if err := m.Unsubscribe("reports"); err == nil {
		t.Error("Unsubscribe() on missing queue error = nil, want error")
	}
}

func TestManager_ProcessesEnqueuedJob(t *testing.T) {
	m, q, mr := setupManager(t, "default")
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	jid, err := q.Enqueue(ctx, "default", "EchoWorker", nil, nil)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, _ := mr.Get("exq:stat:processed")
		if n == "1" {
			_ = jid
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job was not processed within deadline")
}
