// Package job defines the wire-compatible job record and the codec that
// serializes it to and from the JSON payload shared with Redis.
package job

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MalformedJobError is returned by the codec when a payload is missing a
// field required to route or retry the job.
type MalformedJobError struct {
	Reason string
}

func (e *MalformedJobError) Error() string {
	return fmt.Sprintf("malformed job: %s", e.Reason)
}

// Job is the canonical record exchanged with Redis. Field names and
// omitempty behavior mirror the established peer wire format so that other
// language implementations sharing the same Redis instance can enqueue to
// and read from this system interchangeably.
type Job struct {
	JID          string            `json:"jid"`
	Class        string            `json:"class"`
	Args         []json.RawMessage `json:"args"`
	Queue        string            `json:"queue"`
	EnqueuedAt   float64           `json:"enqueued_at"`
	Retry        json.RawMessage   `json:"retry,omitempty"`
	RetryCount   int               `json:"retry_count,omitempty"`
	FailedAt     float64           `json:"failed_at,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorClass   string            `json:"error_class,omitempty"`
	Processor    string            `json:"processor,omitempty"`
}

// defaultRetryBudget mirrors the peer ecosystem's default retry count for
// jobs enqueued with retry=true.
const defaultRetryBudget = 25

// New builds a Job ready for enqueue. args may be nil, in which case it is
// encoded as an empty array. retry may be a bool or an int; anything else
// is rejected.
func New(queue, class string, args []json.RawMessage, retry interface{}) (*Job, error) {
	jid, err := newJID()
	if err != nil {
		return nil, fmt.Errorf("generate jid: %w", err)
	}

	if args == nil {
		args = []json.RawMessage{}
	}

	retryRaw, err := encodeRetry(retry)
	if err != nil {
		return nil, err
	}

	j := &Job{
		JID:        jid,
		Class:      class,
		Args:       args,
		Queue:      queue,
		EnqueuedAt: nowEpoch(),
		Retry:      retryRaw,
	}

	if err := j.Validate(); err != nil {
		return nil, err
	}

	return j, nil
}

// Validate enforces the fields a producer must supply for the job to be
// routable and recoverable. It does not validate business-level content of
// Args.
func (j *Job) Validate() error {
	if j.JID == "" {
		return &MalformedJobError{Reason: "missing jid"}
	}
	if j.Class == "" {
		return &MalformedJobError{Reason: "missing class"}
	}
	if j.Queue == "" {
		return &MalformedJobError{Reason: "missing queue"}
	}
	return nil
}

// RetryBudget normalizes the Retry field, which producers may encode as
// either a boolean or an integer, into the number of attempts allowed
// beyond the first. A missing or true value uses defaultRetryBudget; false
// or a negative budget disables retry entirely.
func (j *Job) RetryBudget() int {
	if len(j.Retry) == 0 {
		return defaultRetryBudget
	}

	var asBool bool
	if err := json.Unmarshal(j.Retry, &asBool); err == nil {
		if asBool {
			return defaultRetryBudget
		}
		return 0
	}

	var asInt int
	if err := json.Unmarshal(j.Retry, &asInt); err == nil {
		if asInt < 0 {
			return 0
		}
		return asInt
	}

	return defaultRetryBudget
}

// MethodSelector splits a class of the form "Module.Worker/method_name"
// into the base class and the optional method selector. When no selector is
// present, method is empty.
func (j *Job) MethodSelector() (class, method string) {
	for i := 0; i < len(j.Class); i++ {
		if j.Class[i] == '/' {
			return j.Class[:i], j.Class[i+1:]
		}
	}
	return j.Class, ""
}

// MarkFailed records a failure against the job in place. Callers are
// expected to persist the updated record afterward.
func (j *Job) MarkFailed(errMsg, errClass string) {
	j.RetryCount++
	j.FailedAt = nowEpoch()
	j.ErrorMessage = errMsg
	j.ErrorClass = errClass
}

// Encode serializes the job to its wire JSON form.
func Encode(j *Job) ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return data, nil
}

// Decode deserializes a job from its wire JSON form. Unknown fields are
// ignored so that producers on a newer wire revision do not break this
// consumer.
func Decode(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, &MalformedJobError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

func encodeRetry(retry interface{}) (json.RawMessage, error) {
	switch v := retry.(type) {
	case nil:
		return json.Marshal(true)
	case bool, int, int32, int64:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("retry must be a bool or int, got %T", retry)
	}
}

func newJID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
