package job

import (
	"encoding/json"
	"time"
)

// Outcome records the terminal result of one dequeue-execute cycle for a
// job, for the completion notifier (an optional convenience layered on
// top of the otherwise fire-and-forget queue).
type Outcome struct {
	JID         string          `json:"jid"`
	Success     bool            `json:"success"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
	Duration    time.Duration   `json:"duration"`
}

// UnmarshalResult unmarshals the outcome's result data into dest. Returns
// a ResultError if the job failed.
func (o *Outcome) UnmarshalResult(dest interface{}) error {
	if !o.Success {
		return &ResultError{Message: o.Error}
	}
	if len(o.Result) == 0 {
		return nil
	}
	return json.Unmarshal(o.Result, dest)
}

// ResultError represents an error retrieving or processing an Outcome.
type ResultError struct {
	Message string
}

func (e *ResultError) Error() string {
	return e.Message
}
