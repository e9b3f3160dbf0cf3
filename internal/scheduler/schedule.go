package scheduler

import (
	"encoding/json"
	"time"
)

// Schedule represents a periodic task, distinct from the one-shot entries
// in the schedule/retry sets: a Schedule re-enqueues its job on every
// cron tick rather than once.
type Schedule struct {
	// ID is a unique identifier for the schedule.
	ID string

	// Cron expression (standard 5-field: minute hour day month weekday).
	// Examples:
	//   "0 * * * *"     - Every hour at minute 0
	//   "*/15 * * * *"  - Every 15 minutes
	//   "0 9 * * 1"     - Every Monday at 9:00 AM
	//   "0 0 1 * *"     - First day of every month at midnight
	Cron string

	// Queue is the target queue for the enqueued job.
	Queue string

	// Class is the job class to enqueue (same "Module.Worker/method"
	// convention as any other job).
	Class string

	// Args are the job's arguments, JSON-encoded per argument.
	Args []json.RawMessage

	// Retry controls the enqueued job's retry budget; nil defaults to the
	// standard budget.
	Retry interface{}

	// Timezone for cron evaluation (default: UTC). Must be a valid IANA
	// timezone.
	Timezone string

	// Enabled allows disabling a schedule without removing it.
	Enabled bool

	// Description is for logging/monitoring only.
	Description string
}

// ScheduleState is the runtime state of a Schedule, persisted in Redis.
type ScheduleState struct {
	ID          string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	LastError   string
	LastSuccess time.Time
}
