package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/arlojenkins/exq/internal/job"
	"github.com/arlojenkins/exq/internal/queue"
)

// fakeDequeuer is a mock Dequeuer for pool tests.
type fakeDequeuer struct {
	mu        sync.Mutex
	jobs      []*job.Job
	failed    []string
	retried   []string
	removed   int
	callCount int
}

func (f *fakeDequeuer) Dequeue(ctx context.Context, host string, queues []string) ([]queue.DequeuedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	if len(f.jobs) == 0 {
		return nil, nil
	}
	j := f.jobs[0]
	f.jobs = f.jobs[1:]
	raw, _ := job.Encode(j)
	return []queue.DequeuedJob{{Queue: queues[0], Job: j, Raw: string(raw)}}, nil
}

func (f *fakeDequeuer) RemoveJobFromBackup(ctx context.Context, host, queueName, raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return nil
}

func (f *fakeDequeuer) RetryOrFailJob(ctx context.Context, j *job.Job, errMsg, errClass string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, j.JID)
	return nil
}

type fakeStats struct {
	mu        sync.Mutex
	processed []string
	failed    []string
}

func (f *fakeStats) RecordDequeue(ctx context.Context, host string, pid int, queueName, jid string, concurrency int) (string, error) {
	return "proc-" + jid, nil
}

func (f *fakeStats) RecordProcessed(ctx context.Context, queueName, processID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, processID)
	return nil
}

func (f *fakeStats) RecordFailed(ctx context.Context, queueName, processID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, processID)
	return nil
}

func newTestJob(t *testing.T, class string) *job.Job {
	t.Helper()
	j, err := job.New("default", class, nil, nil)
	if err != nil {
		t.Fatalf("job.New() error = %v", err)
	}
	return j
}

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(Config{QueueName: "default", Dequeuer: &fakeDequeuer{}, Registry: NewRegistry()})
	if p.concurrency != 1 {
		t.Errorf("concurrency = %d, want 1", p.concurrency)
	}
	if p.pollTimeout != 200*time.Millisecond {
		t.Errorf("pollTimeout = %v, want 200ms", p.pollTimeout)
	}
}

func TestPool_ProcessesJobs(t *testing.T) {
	registry := NewRegistry()
	var processed []string
	var mu sync.Mutex
	registry.Register("TestWorker", func(ctx context.Context, j *job.Job) (json.RawMessage, error) {
		mu.Lock()
		processed = append(processed, j.JID)
		mu.Unlock()
		return nil, nil
	})

	dq := &fakeDequeuer{jobs: []*job.Job{
		newTestJob(t, "TestWorker"),
		newTestJob(t, "TestWorker"),
	}}
	st := &fakeStats{}
	p := NewPool(Config{
		QueueName:   "default",
		Concurrency: 2,
		PollTimeout: 10 * time.Millisecond,
		Dequeuer:    dq,
		Stats:       st,
		Registry:    registry,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(processed)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for jobs to process")
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()

	if len(st.processed) != 2 {
		t.Errorf("processed stats recorded = %d, want 2", len(st.processed))
	}
}

func TestPool_ConcurrencyLimit(t *testing.T) {
	registry := NewRegistry()
	var concurrent, maxConcurrent int
	var mu sync.Mutex
	registry.Register("SlowWorker", func(ctx context.Context, j *job.Job) (json.RawMessage, error) {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()
		time.Sleep(150 * time.Millisecond)
		mu.Lock()
		concurrent--
		mu.Unlock()
		return nil, nil
	})

	var jobs []*job.Job
	for i := 0; i < 10; i++ {
		jobs = append(jobs, newTestJob(t, "SlowWorker"))
	}
	dq := &fakeDequeuer{jobs: jobs}
	p := NewPool(Config{
		QueueName:   "default",
		Concurrency: 3,
		PollTimeout: 10 * time.Millisecond,
		Dequeuer:    dq,
		Registry:    registry,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	time.Sleep(500 * time.Millisecond)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	if maxConcurrent > 3 {
		t.Errorf("maxConcurrent = %d, want <= 3", maxConcurrent)
	}
}

func TestPool_WorkerNotFound_MarksFailed(t *testing.T) {
	registry := NewRegistry()
	dq := &fakeDequeuer{jobs: []*job.Job{newTestJob(t, "NoSuchWorker")}}
	st := &fakeStats{}
	p := NewPool(Config{
		QueueName:   "default",
		Concurrency: 1,
		PollTimeout: 10 * time.Millisecond,
		Dequeuer:    dq,
		Stats:       st,
		Registry:    registry,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		dq.mu.Lock()
		n := len(dq.retried)
		dq.mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for job to fail")
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()

	if len(st.failed) != 1 {
		t.Errorf("failed stats recorded = %d, want 1", len(st.failed))
	}
}

func TestPool_HandlerPanic_RecordedAsFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register("PanicWorker", func(ctx context.Context, j *job.Job) (json.RawMessage, error) {
		panic("boom")
	})

	dq := &fakeDequeuer{jobs: []*job.Job{newTestJob(t, "PanicWorker")}}
	p := NewPool(Config{
		QueueName:   "default",
		Concurrency: 1,
		PollTimeout: 10 * time.Millisecond,
		Dequeuer:    dq,
		Registry:    registry,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		dq.mu.Lock()
		n := len(dq.retried)
		dq.mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for panic to be recorded as failure")
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()
}
