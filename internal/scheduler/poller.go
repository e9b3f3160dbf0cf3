package scheduler

import (
	"context"
	"time"

	"github.com/arlojenkins/exq/internal/logger"
)

// Promoter is the subset of *queue.Queue the core poll loop needs.
type Promoter interface {
	SchedulerDequeue(ctx context.Context, now time.Time) (int, error)
}

// Poller is the core scheduler (C5): it periodically promotes schedule and
// retry entries whose score has come due onto their target ready queues.
// Any number of Poller instances across a fleet may run against the same
// namespace concurrently; Promoter's ZRem-based claim makes promotion
// race-safe.
type Poller struct {
	promoter Promoter
	interval time.Duration
	log      logger.Logger
}

// NewPoller builds a Poller with the given poll interval.
func NewPoller(promoter Promoter, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Poller{
		promoter: promoter,
		interval: interval,
		log:      logger.Default().WithComponent(logger.ComponentScheduler),
	}
}

// Run blocks, promoting due entries on every tick, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("scheduler poller started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("scheduler poller stopping")
			return
		case <-ticker.C:
			n, err := p.promoter.SchedulerDequeue(ctx, time.Now())
			if err != nil {
				p.log.Warn("scheduler poll failed", "error", err.Error())
				continue
			}
			if n > 0 {
				p.log.Debug("promoted due entries", "count", n)
			}
		}
	}
}
