package job

import (
	"encoding/json"
	"testing"
)

func TestNew_SetsDefaults(t *testing.T) {
	j, err := New("default", "ReportWorker", nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if j.JID == "" {
		t.Error("JID is empty")
	}
	if j.Queue != "default" {
		t.Errorf("Queue = %q, want %q", j.Queue, "default")
	}
	if j.Class != "ReportWorker" {
		t.Errorf("Class = %q, want %q", j.Class, "ReportWorker")
	}
	if j.Args == nil {
		t.Error("Args is nil, want empty slice")
	}
	if j.EnqueuedAt <= 0 {
		t.Errorf("EnqueuedAt = %v, want > 0", j.EnqueuedAt)
	}
}

func TestNew_UniqueJIDs(t *testing.T) {
	a, err := New("default", "ReportWorker", nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := New("default", "ReportWorker", nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.JID == b.JID {
		t.Errorf("New() produced duplicate JIDs: %s", a.JID)
	}
}

func TestNew_RejectsInvalidRetry(t *testing.T) {
	_, err := New("default", "ReportWorker", nil, "tomorrow")
	if err == nil {
		t.Fatal("New() error = nil, want error for non-bool/int retry")
	}
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		job  Job
	}{
		{"missing jid", Job{Class: "X", Queue: "default"}},
		{"missing class", Job{JID: "abc", Queue: "default"}},
		{"missing queue", Job{JID: "abc", Class: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.job.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
			if _, ok := tt.job.Validate().(*MalformedJobError); !ok {
				t.Errorf("Validate() error type = %T, want *MalformedJobError", tt.job.Validate())
			}
		})
	}
}

func TestRetryBudget_DefaultsTrue(t *testing.T) {
	j := &Job{}
	if budget := j.RetryBudget(); budget != defaultRetryBudget {
		t.Errorf("RetryBudget() = %d, want %d", budget, defaultRetryBudget)
	}
}

func TestRetryBudget_False(t *testing.T) {
	raw, _ := json.Marshal(false)
	j := &Job{Retry: raw}
	if budget := j.RetryBudget(); budget != 0 {
		t.Errorf("RetryBudget() = %d, want 0", budget)
	}
}

func TestRetryBudget_ExplicitInt(t *testing.T) {
	raw, _ := json.Marshal(5)
	j := &Job{Retry: raw}
	if budget := j.RetryBudget(); budget != 5 {
		t.Errorf("RetryBudget() = %d, want 5", budget)
	}
}

func TestRetryBudget_NegativeIntDisables(t *testing.T) {
	raw, _ := json.Marshal(-1)
	j := &Job{Retry: raw}
	if budget := j.RetryBudget(); budget != 0 {
		t.Errorf("RetryBudget() = %d, want 0", budget)
	}
}

func TestMethodSelector_WithSelector(t *testing.T) {
	j := &Job{Class: "Module.Worker/process_batch"}
	class, method := j.MethodSelector()
	if class != "Module.Worker" {
		t.Errorf("class = %q, want %q", class, "Module.Worker")
	}
	if method != "process_batch" {
		t.Errorf("method = %q, want %q", method, "process_batch")
	}
}

func TestMethodSelector_WithoutSelector(t *testing.T) {
	j := &Job{Class: "ReportWorker"}
	class, method := j.MethodSelector()
	if class != "ReportWorker" {
		t.Errorf("class = %q, want %q", class, "ReportWorker")
	}
	if method != "" {
		t.Errorf("method = %q, want empty", method)
	}
}

func TestMarkFailed_IncrementsRetryCount(t *testing.T) {
	j := &Job{}
	j.MarkFailed("boom", "RuntimeError")
	if j.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", j.RetryCount)
	}
	if j.ErrorMessage != "boom" {
		t.Errorf("ErrorMessage = %q, want %q", j.ErrorMessage, "boom")
	}
	if j.ErrorClass != "RuntimeError" {
		t.Errorf("ErrorClass = %q, want %q", j.ErrorClass, "RuntimeError")
	}
	if j.FailedAt <= 0 {
		t.Errorf("FailedAt = %v, want > 0", j.FailedAt)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	orig, err := New("mailers", "SendEmail", []json.RawMessage{json.RawMessage(`"a@example.com"`)}, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.JID != orig.JID {
		t.Errorf("JID = %q, want %q", decoded.JID, orig.JID)
	}
	if decoded.Class != orig.Class {
		t.Errorf("Class = %q, want %q", decoded.Class, orig.Class)
	}
	if decoded.Queue != orig.Queue {
		t.Errorf("Queue = %q, want %q", decoded.Queue, orig.Queue)
	}
}

func TestDecode_RejectsInvalidJSON(t *testing.T) {
	_, err := Decode([]byte("not json"))
	if err == nil {
		t.Fatal("Decode() error = nil, want error")
	}
	if _, ok := err.(*MalformedJobError); !ok {
		t.Errorf("Decode() error type = %T, want *MalformedJobError", err)
	}
}

func TestDecode_RejectsMissingRequiredFields(t *testing.T) {
	_, err := Decode([]byte(`{"args":[]}`))
	if err == nil {
		t.Fatal("Decode() error = nil, want error")
	}
}

func TestEncode_RejectsInvalidJob(t *testing.T) {
	_, err := Encode(&Job{})
	if err == nil {
		t.Fatal("Encode() error = nil, want error for empty job")
	}
}
