// Package client provides the enqueuer API (C8): a small, standalone
// surface for producers that only need to push jobs and optionally wait on
// their outcome, without pulling in the worker pool or scheduler.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/arlojenkins/exq/internal/job"
	"github.com/arlojenkins/exq/internal/queue"
	"github.com/arlojenkins/exq/internal/result"
	"github.com/redis/go-redis/v9"
)

// Client submits jobs to a namespaced Redis-backed queue and, optionally,
// waits for their outcome through a completion notifier.
type Client struct {
	q        *queue.Queue
	notifier result.Notifier
}

// Options configures a Client.
type Options struct {
	// Namespace prefixes every Redis key this client and its peers share.
	Namespace string

	// WithNotifier enables SubmitAndWait and GetOutcome by attaching a
	// completion notifier over the same Redis client. Leave zero to skip
	// it if the caller only needs fire-and-forget enqueue.
	WithNotifier bool
	SuccessTTL   time.Duration
	FailureTTL   time.Duration
}

// New connects to redisAddr and returns a Client ready to enqueue.
func New(ctx context.Context, redisAddr string, db int, password string, opts Options) (*Client, error) {
	q, err := queue.Connect(ctx, redisAddr, db, password, queue.Options{Namespace: opts.Namespace})
	if err != nil {
		return nil, fmt.Errorf("connect queue: %w", err)
	}

	c := &Client{q: q}
	if opts.WithNotifier {
		successTTL, failureTTL := opts.SuccessTTL, opts.FailureTTL
		if successTTL == 0 {
			successTTL = time.Hour
		}
		if failureTTL == 0 {
			failureTTL = 24 * time.Hour
		}
		c.notifier = result.NewRedisNotifier(q.Client(), opts.Namespace, successTTL, failureTTL)
	}
	return c, nil
}

// NewFromClient wraps an already-connected *redis.Client, for callers that
// share one connection pool across several exq components.
func NewFromClient(redisClient *redis.Client, opts Options) *Client {
	q := queue.New(redisClient, queue.Options{Namespace: opts.Namespace})

	c := &Client{q: q}
	if opts.WithNotifier {
		successTTL, failureTTL := opts.SuccessTTL, opts.FailureTTL
		if successTTL == 0 {
			successTTL = time.Hour
		}
		if failureTTL == 0 {
			failureTTL = 24 * time.Hour
		}
		c.notifier = result.NewRedisNotifier(redisClient, opts.Namespace, successTTL, failureTTL)
	}
	return c
}

// Enqueue pushes class onto queueName for immediate processing and returns
// the assigned job ID. retry may be a bool or int (see job.New); nil
// defaults to the standard retry budget.
func (c *Client) Enqueue(ctx context.Context, queueName, class string, args []interface{}, retry interface{}) (string, error) {
	jid, err := c.q.Enqueue(ctx, queueName, class, args, retry)
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return jid, nil
}

// EnqueueAt schedules class to become ready for processing at the given
// time, returning the assigned job ID.
func (c *Client) EnqueueAt(ctx context.Context, queueName string, at time.Time, class string, args []interface{}, retry interface{}) (string, error) {
	jid, err := c.q.EnqueueAt(ctx, queueName, at, class, args, retry)
	if err != nil {
		return "", fmt.Errorf("enqueue at: %w", err)
	}
	return jid, nil
}

// EnqueueIn schedules class to become ready for processing after offset
// has elapsed, returning the assigned job ID.
func (c *Client) EnqueueIn(ctx context.Context, queueName string, offset time.Duration, class string, args []interface{}, retry interface{}) (string, error) {
	jid, err := c.q.EnqueueIn(ctx, queueName, offset, class, args, retry)
	if err != nil {
		return "", fmt.Errorf("enqueue in: %w", err)
	}
	return jid, nil
}

// GetOutcome returns the stored outcome for jid, or nil if it hasn't
// completed yet. Requires a Client built with Options.WithNotifier.
func (c *Client) GetOutcome(ctx context.Context, jid string) (*job.Outcome, error) {
	if c.notifier == nil {
		return nil, fmt.Errorf("client was not configured with a completion notifier")
	}
	return c.notifier.GetOutcome(ctx, jid)
}

// SubmitAndWait enqueues class and blocks until its outcome is available or
// timeout elapses. Requires a Client built with Options.WithNotifier.
func (c *Client) SubmitAndWait(ctx context.Context, queueName, class string, args []interface{}, timeout time.Duration) (*job.Outcome, error) {
	if c.notifier == nil {
		return nil, fmt.Errorf("client was not configured with a completion notifier")
	}

	jid, err := c.Enqueue(ctx, queueName, class, args, false)
	if err != nil {
		return nil, err
	}

	outcome, err := c.notifier.WaitForOutcome(ctx, jid, timeout)
	if err != nil {
		return nil, fmt.Errorf("wait for outcome: %w", err)
	}
	if outcome == nil {
		return nil, fmt.Errorf("job %s did not complete within %v", jid, timeout)
	}
	return outcome, nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.q.Close()
}
