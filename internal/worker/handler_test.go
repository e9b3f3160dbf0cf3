package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/arlojenkins/exq/internal/job"
)

func noopHandler(ctx context.Context, j *job.Job) (json.RawMessage, error) { return nil, nil }

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()
	registry.Register("TestWorker", noopHandler)

	if registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1", registry.Count())
	}
}

func TestRegistry_Get_RegisteredHandler(t *testing.T) {
	registry := NewRegistry()
	registry.Register("TestWorker", noopHandler)

	handler, exists := registry.Get("TestWorker")
	if !exists {
		t.Fatal("Get() exists = false, want true")
	}
	if handler == nil {
		t.Error("Get() handler is nil")
	}
}

func TestRegistry_Get_UnregisteredHandler(t *testing.T) {
	registry := NewRegistry()
	if _, exists := registry.Get("NoSuchWorker"); exists {
		t.Error("Get() exists = true, want false")
	}
}

func TestRegistry_Dispatch_UsesMethodSelectorBaseClass(t *testing.T) {
	registry := NewRegistry()
	var gotClass string
	registry.Register("Reports.InvoiceWorker", func(ctx context.Context, j *job.Job) (json.RawMessage, error) {
		gotClass, _ = j.MethodSelector()
		return json.RawMessage(`"ok"`), nil
	})

	j, err := job.New("default", "Reports.InvoiceWorker/generate", nil, nil)
	if err != nil {
		t.Fatalf("job.New() error = %v", err)
	}

	out, err := registry.Dispatch(context.Background(), j)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if gotClass != "Reports.InvoiceWorker" {
		t.Errorf("class seen by handler = %q, want Reports.InvoiceWorker", gotClass)
	}
	if string(out) != `"ok"` {
		t.Errorf("Dispatch() output = %s", out)
	}
}

func TestRegistry_Dispatch_WorkerNotFound(t *testing.T) {
	registry := NewRegistry()
	j, _ := job.New("default", "NoSuchWorker", nil, nil)

	_, err := registry.Dispatch(context.Background(), j)
	if err == nil {
		t.Fatal("Dispatch() error = nil, want WorkerNotFoundError")
	}
	if _, ok := err.(*WorkerNotFoundError); !ok {
		t.Errorf("Dispatch() error type = %T, want *WorkerNotFoundError", err)
	}
}

func TestHandleCountItems(t *testing.T) {
	args, _ := json.Marshal([]string{"a", "b", "c"})
	j, _ := job.New("default", "count_items", []json.RawMessage{args}, nil)

	out, err := HandleCountItems(context.Background(), j)
	if err != nil {
		t.Fatalf("HandleCountItems() error = %v", err)
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Count != 3 {
		t.Errorf("Count = %d, want 3", result.Count)
	}
}

func TestHandleCountItems_MissingArgs(t *testing.T) {
	j, _ := job.New("default", "count_items", nil, nil)
	if _, err := HandleCountItems(context.Background(), j); err == nil {
		t.Error("HandleCountItems() error = nil, want error for missing args")
	}
}

func TestRegistry_MultipleHandlers(t *testing.T) {
	registry := NewRegistry()
	registry.Register("handler1", HandleCountItems)
	registry.Register("handler2", HandleSendEmail)
	registry.Register("handler3", HandleProcessData)

	if registry.Count() != 3 {
		t.Errorf("Count() = %d, want 3", registry.Count())
	}
}
