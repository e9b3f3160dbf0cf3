package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError represents an error recovered from a panic
type PanicError struct {
	Value      interface{} // The panic value
	Stacktrace string      // Full stack trace
}

// Error implements the error interface
func (p *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", p.Value)
}

// RecoverPanic recovers from a panic and returns it as an error with stack trace
// Returns nil if no panic occurred
func RecoverPanic() error {
	if r := recover(); r != nil {
		return &PanicError{
			Value:      r,
			Stacktrace: string(debug.Stack()),
		}
	}
	return nil
}

// FormatPanicForLog returns a formatted string suitable for logging
func FormatPanicForLog(panicErr *PanicError) string {
	return fmt.Sprintf("PANIC: %v\n\nStack Trace:\n%s", panicErr.Value, panicErr.Stacktrace)
}

// RedisUnavailableError wraps a failure to reach Redis, for callers that
// want to distinguish connectivity failures from protocol-level ones
// (job.MalformedJobError, worker.WorkerNotFoundError) without inspecting
// error strings.
type RedisUnavailableError struct {
	Op  string // the operation that failed, e.g. "dequeue", "enqueue"
	Err error
}

func (e *RedisUnavailableError) Error() string {
	return fmt.Sprintf("redis unavailable during %s: %v", e.Op, e.Err)
}

func (e *RedisUnavailableError) Unwrap() error { return e.Err }

// WorkerRaisedError wraps a non-panic error or recovered panic returned by
// a job handler, as distinct from WorkerNotFoundError (no handler
// registered at all).
type WorkerRaisedError struct {
	Class string
	Err   error
}

func (e *WorkerRaisedError) Error() string {
	return fmt.Sprintf("worker raised in %s: %v", e.Class, e.Err)
}

func (e *WorkerRaisedError) Unwrap() error { return e.Err }

// StatsWriteFailedError wraps a failed write to the durable Redis-backed
// statistics and process registry (C4). Stats failures are best-effort by
// design: callers log this and continue rather than failing the job.
type StatsWriteFailedError struct {
	Op  string // "record_dequeue", "record_processed", "record_failed"
	Err error
}

func (e *StatsWriteFailedError) Error() string {
	return fmt.Sprintf("stats write failed (%s): %v", e.Op, e.Err)
}

func (e *StatsWriteFailedError) Unwrap() error { return e.Err }
