// Package queue implements the Redis-backed job queue protocol: the key
// layout and the atomic operations on it (C1 Redis Client, C3 Job Queue
// Protocol).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/arlojenkins/exq/internal/errors"
	"github.com/arlojenkins/exq/internal/job"
	"github.com/arlojenkins/exq/internal/logger"
	"github.com/redis/go-redis/v9"
)

const defaultDeadCap = 10000

// Queue exposes the job queue protocol (C3) over a Redis client (C1).
type Queue struct {
	client    *redis.Client
	namespace string
	log       logger.Logger
	deadCap   int64
}

// Options configures a Queue.
type Options struct {
	Namespace string
	DeadCap   int64
	Logger    logger.Logger
}

// New wraps an existing Redis client with the job queue protocol.
func New(client *redis.Client, opts Options) *Queue {
	ns := opts.Namespace
	if ns == "" {
		ns = "exq"
	}
	cap := opts.DeadCap
	if cap <= 0 {
		cap = defaultDeadCap
	}
	log := opts.Logger
	if log == nil {
		log = &logger.NoOpLogger{}
	}
	return &Queue{client: client, namespace: ns, log: log, deadCap: cap}
}

// Connect dials Redis and verifies connectivity before returning a Queue.
func Connect(ctx context.Context, addr string, db int, password string, opts Options) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &errors.RedisUnavailableError{Op: "connect", Err: err}
	}
	return New(client, opts), nil
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Client exposes the underlying Redis client for components (C4, C5, C9)
// that need direct, protocol-level access under the same namespace.
func (q *Queue) Client() *redis.Client {
	return q.client
}

// Namespace returns the key prefix this queue is operating under.
func (q *Queue) Namespace() string {
	return q.namespace
}

func (q *Queue) key(suffix string) string {
	return q.namespace + ":" + suffix
}

func (q *Queue) keyQueues() string           { return q.key("queues") }
func (q *Queue) keyQueue(name string) string { return q.key("queue:" + name) }
func (q *Queue) keyBackup(host, queueName string) string {
	return q.key(host + ":" + queueName + ":backup")
}
func (q *Queue) keySchedule() string { return q.key("schedule") }
func (q *Queue) keyRetry() string    { return q.key("retry") }
func (q *Queue) keyDead() string     { return q.key("dead") }

// Enqueue pushes a job to the tail of queue:<name> for immediate dispatch.
func (q *Queue) Enqueue(ctx context.Context, queueName, class string, args []interface{}, retry interface{}) (string, error) {
	j, err := newJob(queueName, class, args, retry)
	if err != nil {
		return "", err
	}
	payload, err := job.Encode(j)
	if err != nil {
		return "", err
	}

	pipe := q.client.TxPipeline()
	pipe.SAdd(ctx, q.keyQueues(), queueName)
	pipe.RPush(ctx, q.keyQueue(queueName), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return j.JID, nil
}

// EnqueueAt schedules a job to become ready at the given absolute time.
func (q *Queue) EnqueueAt(ctx context.Context, queueName string, at time.Time, class string, args []interface{}, retry interface{}) (string, error) {
	j, err := newJob(queueName, class, args, retry)
	if err != nil {
		return "", err
	}
	payload, err := job.Encode(j)
	if err != nil {
		return "", err
	}

	if err := q.client.ZAdd(ctx, q.keySchedule(), redis.Z{
		Score:  float64(at.UnixNano()) / 1e9,
		Member: payload,
	}).Err(); err != nil {
		return "", fmt.Errorf("enqueue_at: %w", err)
	}
	return j.JID, nil
}

// EnqueueIn schedules a job to become ready after offset. Per spec, an
// offset of zero still passes through the schedule set so the scheduler
// promotes it rather than the caller enqueuing directly.
func (q *Queue) EnqueueIn(ctx context.Context, queueName string, offset time.Duration, class string, args []interface{}, retry interface{}) (string, error) {
	return q.EnqueueAt(ctx, queueName, time.Now().Add(offset), class, args, retry)
}

func newJob(queueName, class string, args []interface{}, retry interface{}) (*job.Job, error) {
	encodedArgs, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return job.New(queueName, class, encodedArgs, retry)
}

func encodeArgs(args []interface{}) ([]json.RawMessage, error) {
	encoded := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode arg: %w", err)
		}
		encoded = append(encoded, data)
	}
	return encoded, nil
}

// DequeuedJob is one job popped atomically from a ready queue into a
// host's backup list.
type DequeuedJob struct {
	Queue string
	Job   *job.Job
	Raw   string
}

// Dequeue pops the head of each named queue, in caller order, pushing the
// same serialized value onto <host>:<queue>:backup in one atomic step per
// queue. It returns the subset of queues that yielded a job.
func (q *Queue) Dequeue(ctx context.Context, host string, queues []string) ([]DequeuedJob, error) {
	var out []DequeuedJob
	for _, queueName := range queues {
		raw, err := q.client.LMove(ctx, q.keyQueue(queueName), q.keyBackup(host, queueName), "LEFT", "RIGHT").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("dequeue %s: %w", queueName, err)
		}
		j, err := job.Decode([]byte(raw))
		if err != nil {
			// malformed payload already sitting in the backup list; move it
			// from there to the dead set rather than blocking the queue.
			q.log.Error("moving malformed job from backup to dead", "queue", queueName, "error", err.Error())
			pipe := q.client.TxPipeline()
			pipe.LRem(ctx, q.keyBackup(host, queueName), 1, raw)
			pipe.ZAdd(ctx, q.keyDead(), redis.Z{Score: float64(time.Now().UnixNano()) / 1e9, Member: raw})
			pipe.ZRemRangeByRank(ctx, q.keyDead(), 0, -q.deadCap-1)
			if _, err := pipe.Exec(ctx); err != nil {
				q.log.Error("failed to move malformed job to dead", "queue", queueName, "error", err.Error())
			}
			continue
		}
		j.Processor = host
		out = append(out, DequeuedJob{Queue: queueName, Job: j, Raw: raw})
	}
	return out, nil
}

// RemoveJobFromBackup deletes exactly one matching element from the backup
// list, called on successful completion.
func (q *Queue) RemoveJobFromBackup(ctx context.Context, host, queueName, raw string) error {
	if err := q.client.LRem(ctx, q.keyBackup(host, queueName), 1, raw).Err(); err != nil {
		return fmt.Errorf("remove from backup: %w", err)
	}
	return nil
}

// ReEnqueueBackup drains the backup list for (host, queue) back onto the
// ready queue, preserving order, until empty. This is the boot-time
// recovery protocol (C7) and may also be invoked ad hoc.
func (q *Queue) ReEnqueueBackup(ctx context.Context, host, queueName string) (int, error) {
	backupKey := q.keyBackup(host, queueName)
	readyKey := q.keyQueue(queueName)
	moved := 0
	for {
		_, err := q.client.LMove(ctx, backupKey, readyKey, "LEFT", "RIGHT").Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("re_enqueue_backup: %w", err)
		}
		moved++
	}
	return moved, nil
}

// SchedulerDequeue reads entries from the schedule and retry sets with a
// score <= now and atomically promotes each one to its target queue. The
// per-entry ZRem return count is the race-safe claim: only the caller
// whose ZRem removed the member gets to promote it, so concurrent
// schedulers never double-deliver the same entry.
func (q *Queue) SchedulerDequeue(ctx context.Context, now time.Time) (int, error) {
	promoted := 0
	for _, setKey := range []string{q.keySchedule(), q.keyRetry()} {
		n, err := q.promoteDue(ctx, setKey, now)
		if err != nil {
			return promoted, err
		}
		promoted += n
	}
	return promoted, nil
}

func (q *Queue) promoteDue(ctx context.Context, setKey string, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", float64(now.UnixNano())/1e9),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", setKey, err)
	}

	promoted := 0
	for _, raw := range due {
		removed, err := q.client.ZRem(ctx, setKey, raw).Result()
		if err != nil {
			return promoted, fmt.Errorf("claim entry from %s: %w", setKey, err)
		}
		if removed == 0 {
			// lost the race to another scheduler instance
			continue
		}

		j, err := job.Decode([]byte(raw))
		if err != nil {
			q.log.Error("dropping malformed scheduled entry", "set", setKey, "error", err.Error())
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.SAdd(ctx, q.keyQueues(), j.Queue)
		pipe.RPush(ctx, q.keyQueue(j.Queue), raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return promoted, fmt.Errorf("promote entry from %s: %w", setKey, err)
		}
		promoted++
	}
	return promoted, nil
}

// RetryOrFailJob increments retry_count; if it remains within the job's
// retry budget, the job is re-added to the retry set at a back-off score,
// otherwise it is appended to the capped dead set.
func (q *Queue) RetryOrFailJob(ctx context.Context, j *job.Job, errMsg, errClass string) error {
	budget := j.RetryBudget()
	j.MarkFailed(errMsg, errClass)

	if j.RetryCount <= budget {
		delay := backoff(j.RetryCount)
		dueAt := time.Now().Add(delay)
		payload, err := job.Encode(j)
		if err != nil {
			return err
		}
		if err := q.client.ZAdd(ctx, q.keyRetry(), redis.Z{
			Score:  float64(dueAt.UnixNano()) / 1e9,
			Member: payload,
		}).Err(); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		return nil
	}

	payload, err := job.Encode(j)
	if err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, q.keyDead(), redis.Z{Score: j.FailedAt, Member: payload})
	pipe.ZRemRangeByRank(ctx, q.keyDead(), 0, -q.deadCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("move to dead: %w", err)
	}
	return nil
}

// backoff matches the peer ecosystem's retry back-off formula:
// n^4 + 15 + rand(30)*(n+1) seconds.
func backoff(n int) time.Duration {
	secs := math.Pow(float64(n), 4) + 15 + float64(rand.Intn(30)*(n+1))
	return time.Duration(secs) * time.Second
}
