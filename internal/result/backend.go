// Package result provides the optional completion notifier: a
// publish/subscribe layer over Redis that lets a caller block for a job's
// outcome on top of the otherwise asynchronous queue.
package result

import (
	"context"
	"time"

	"github.com/arlojenkins/exq/internal/job"
)

// Notifier stores job outcomes and lets callers wait on them.
type Notifier interface {
	// StoreOutcome records a job's terminal outcome and wakes any waiter.
	StoreOutcome(ctx context.Context, outcome *job.Outcome) error

	// GetOutcome retrieves a stored outcome, or nil if not yet available.
	GetOutcome(ctx context.Context, jid string) (*job.Outcome, error)

	// WaitForOutcome blocks until an outcome is available or timeout
	// elapses. Returns nil, nil on timeout.
	WaitForOutcome(ctx context.Context, jid string, timeout time.Duration) (*job.Outcome, error)

	// DeleteOutcome removes a stored outcome.
	DeleteOutcome(ctx context.Context, jid string) error

	Close() error
}
