package worker

import (
	"context"
	"sync"
	"time"

	"github.com/arlojenkins/exq/internal/errors"
	"github.com/arlojenkins/exq/internal/job"
	"github.com/arlojenkins/exq/internal/logger"
	"github.com/arlojenkins/exq/internal/metrics"
	"github.com/arlojenkins/exq/internal/queue"
	"github.com/arlojenkins/exq/internal/result"
	"github.com/arlojenkins/exq/internal/stats"
)

// Dequeuer is the subset of *queue.Queue a Pool needs to pull and settle
// jobs for a single queue name.
type Dequeuer interface {
	Dequeue(ctx context.Context, host string, queues []string) ([]queue.DequeuedJob, error)
	RemoveJobFromBackup(ctx context.Context, host, queueName, raw string) error
	RetryOrFailJob(ctx context.Context, j *job.Job, errMsg, errClass string) error
}

// ProcessRecorder is the subset of *stats.Registry a Pool needs.
type ProcessRecorder interface {
	RecordDequeue(ctx context.Context, host string, pid int, queue, jid string, concurrency int) (string, error)
	RecordProcessed(ctx context.Context, queue, processID string) error
	RecordFailed(ctx context.Context, queue, processID string) error
}

// Pool runs a bounded number of concurrent job executions for a single
// named queue (C6). One Pool instance exists per subscribed queue; the
// manager owns starting and stopping them.
type Pool struct {
	queueName   string
	host        string
	pid         int
	concurrency int
	pollTimeout time.Duration
	jobTimeout  time.Duration

	dequeuer Dequeuer
	stats    ProcessRecorder
	registry *Registry
	notifier result.Notifier

	sem      chan struct{}
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// Config configures a Pool.
type Config struct {
	QueueName   string
	Host        string
	PID         int
	Concurrency int
	PollTimeout time.Duration
	JobTimeout  time.Duration
	Dequeuer    Dequeuer
	Stats       ProcessRecorder
	Registry    *Registry
	Notifier    result.Notifier
}

// NewPool builds a Pool for a single queue.
func NewPool(cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 200 * time.Millisecond
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	return &Pool{
		queueName:   cfg.QueueName,
		host:        cfg.Host,
		pid:         cfg.PID,
		concurrency: cfg.Concurrency,
		pollTimeout: cfg.PollTimeout,
		jobTimeout:  cfg.JobTimeout,
		dequeuer:    cfg.Dequeuer,
		stats:       cfg.Stats,
		registry:    cfg.Registry,
		notifier:    cfg.Notifier,
		sem:         make(chan struct{}, cfg.Concurrency),
		stopChan:    make(chan struct{}),
	}
}

// Start begins the poll loop that dequeues and dispatches jobs for this
// pool's queue until the context is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop signals the poll loop to stop dequeuing and waits (up to 30s) for
// in-flight jobs to finish. Backup lists are left untouched; the next
// boot-time recovery pass re-enqueues anything still there.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker pool stopped", "queue", p.queueName)
	case <-time.After(30 * time.Second):
		logger.Warn("worker pool shutdown timed out", "queue", p.queueName)
	}
}

// ActiveCount returns the number of slots currently occupied by running
// jobs.
func (p *Pool) ActiveCount() int {
	return len(p.sem)
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fill(ctx)
		}
	}
}

// fill claims free semaphore slots and dequeues one job per slot, handing
// each off to its own goroutine.
func (p *Pool) fill(ctx context.Context) {
	for {
		select {
		case p.sem <- struct{}{}:
		default:
			return // no free slot
		}

		jobs, err := p.dequeuer.Dequeue(ctx, p.host, []string{p.queueName})
		if err != nil {
			<-p.sem
			logger.Warn("dequeue failed", "queue", p.queueName, "error", err.Error())
			return
		}
		if len(jobs) == 0 {
			<-p.sem
			return
		}

		dj := jobs[0]
		p.wg.Add(1)
		go p.run(ctx, dj)
	}
}

func (p *Pool) run(ctx context.Context, dj queue.DequeuedJob) {
	defer p.wg.Done()
	defer func() { <-p.sem }()

	metrics.Default().RecordJobStarted(p.queueName)
	metrics.Default().RecordWorkerActivity(int64(p.ActiveCount()), int64(p.concurrency))

	processID := ""
	if p.stats != nil {
		id, err := p.stats.RecordDequeue(ctx, p.host, p.pid, p.queueName, dj.Job.JID, p.concurrency)
		if err != nil {
			swErr := &errors.StatsWriteFailedError{Op: "record_dequeue", Err: err}
			logger.Warn("record dequeue failed", "queue", p.queueName, "jid", dj.Job.JID, "error", swErr.Error())
		} else {
			processID = id
		}
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	start := time.Now()
	output, runErr := p.execute(jobCtx, dj.Job)
	duration := time.Since(start)

	if runErr != nil {
		logger.Warn("job failed", "queue", p.queueName, "jid", dj.Job.JID, "class", dj.Job.Class, "error", runErr.Error())
		metrics.Default().RecordJobFailed(p.queueName, duration)

		if err := p.dequeuer.RetryOrFailJob(ctx, dj.Job, runErr.Error(), errorClass(runErr)); err != nil {
			logger.Error("retry_or_fail failed", "queue", p.queueName, "jid", dj.Job.JID, "error", err.Error())
		}
		if err := p.dequeuer.RemoveJobFromBackup(ctx, p.host, p.queueName, dj.Raw); err != nil {
			logger.Error("remove from backup failed", "queue", p.queueName, "jid", dj.Job.JID, "error", err.Error())
		}
		if p.stats != nil {
			if err := p.stats.RecordFailed(ctx, p.queueName, processID); err != nil {
				swErr := &errors.StatsWriteFailedError{Op: "record_failed", Err: err}
				logger.Error("record failed stat failed", "queue", p.queueName, "error", swErr.Error())
			}
		}
		if p.notifier != nil {
			p.storeOutcome(ctx, dj.Job, false, nil, runErr.Error())
		}
		return
	}

	if err := p.dequeuer.RemoveJobFromBackup(ctx, p.host, p.queueName, dj.Raw); err != nil {
		logger.Error("remove from backup failed", "queue", p.queueName, "jid", dj.Job.JID, "error", err.Error())
	}
	if p.stats != nil {
		if err := p.stats.RecordProcessed(ctx, p.queueName, processID); err != nil {
			swErr := &errors.StatsWriteFailedError{Op: "record_processed", Err: err}
			logger.Error("record processed stat failed", "queue", p.queueName, "error", swErr.Error())
		}
	}
	metrics.Default().RecordJobCompleted(p.queueName, duration)
	if p.notifier != nil {
		p.storeOutcome(ctx, dj.Job, true, output, "")
	}
}

// execute dispatches the job via the handler registry, converting any
// panic raised by the handler into a job failure rather than crashing the
// pool goroutine.
func (p *Pool) execute(ctx context.Context, j *job.Job) (out []byte, err error) {
	ctx = logger.ContextWithJob(ctx, j.JID, p.queueName)

	defer func() {
		if panicErr := errors.RecoverPanic(); panicErr != nil {
			pe := panicErr.(*errors.PanicError)
			logger.Error("worker panicked", "queue", p.queueName, "jid", j.JID, "detail", errors.FormatPanicForLog(pe))
			err = &errors.WorkerRaisedError{Class: j.Class, Err: pe}
		}
	}()

	jobLogger := logger.Default().WithSource(logger.LogSourceJob)
	jobLogger.InfoContext(ctx, "processing job", "class", j.Class)

	result, dispatchErr := p.registry.Dispatch(ctx, j)
	if dispatchErr != nil {
		if _, notFound := dispatchErr.(*WorkerNotFoundError); notFound {
			return nil, dispatchErr
		}
		return nil, &errors.WorkerRaisedError{Class: j.Class, Err: dispatchErr}
	}
	return result, nil
}

func (p *Pool) storeOutcome(ctx context.Context, j *job.Job, success bool, output []byte, errMsg string) {
	outcome := &job.Outcome{
		JID:         j.JID,
		Success:     success,
		Result:      output,
		Error:       errMsg,
		CompletedAt: time.Now(),
	}
	if err := p.notifier.StoreOutcome(ctx, outcome); err != nil {
		logger.Error("store outcome failed", "queue", p.queueName, "jid", j.JID, "error", err.Error())
	}
}

func errorClass(err error) string {
	switch err.(type) {
	case *WorkerNotFoundError:
		return "WorkerNotFoundError"
	case *errors.WorkerRaisedError:
		return "WorkerRaisedError"
	default:
		return "RuntimeError"
	}
}
