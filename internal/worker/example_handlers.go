// Package worker contains example job handlers for demonstration. Users
// register their own handlers with a Registry based on their needs.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arlojenkins/exq/internal/job"
	"github.com/arlojenkins/exq/internal/logger"
)

// HandleCountItems counts items in a JSON array argument.
func HandleCountItems(ctx context.Context, j *job.Job) (json.RawMessage, error) {
	if len(j.Args) == 0 {
		return nil, &job.MalformedJobError{Reason: "count_items requires one array argument"}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(j.Args[0], &items); err != nil {
		return nil, err
	}
	logger.Info("counted items", "jid", j.JID, "count", len(items))
	return json.Marshal(map[string]int{"count": len(items)})
}

// HandleSendEmail simulates sending an email described by the job's first
// argument.
func HandleSendEmail(ctx context.Context, j *job.Job) (json.RawMessage, error) {
	if len(j.Args) == 0 {
		return nil, &job.MalformedJobError{Reason: "send_email requires one object argument"}
	}
	var email struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(j.Args[0], &email); err != nil {
		return nil, err
	}
	logger.Info("sending email", "jid", j.JID, "to", email.To)
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

// HandleProcessData simulates a longer-running data processing job.
func HandleProcessData(ctx context.Context, j *job.Job) (json.RawMessage, error) {
	logger.Info("processing data", "jid", j.JID)
	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}
