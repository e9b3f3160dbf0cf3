package result

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arlojenkins/exq/internal/job"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func TestRedisNotifier_StoreAndGetOutcome_Success(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	n := NewRedisNotifier(client, "exq", time.Hour, 24*time.Hour)
	ctx := context.Background()

	outcome := &job.Outcome{
		JID:         "job123",
		Success:     true,
		Result:      []byte(`{"count":42}`),
		CompletedAt: time.Now().Truncate(time.Second),
		Duration:    5 * time.Second,
	}

	if err := n.StoreOutcome(ctx, outcome); err != nil {
		t.Fatalf("StoreOutcome() error = %v", err)
	}

	got, err := n.GetOutcome(ctx, "job123")
	if err != nil {
		t.Fatalf("GetOutcome() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetOutcome() returned nil")
	}
	if !got.Success {
		t.Errorf("Success = false, want true")
	}
	if string(got.Result) != string(outcome.Result) {
		t.Errorf("Result = %v, want %v", string(got.Result), string(outcome.Result))
	}
}

func TestRedisNotifier_StoreAndGetOutcome_Failure(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	n := NewRedisNotifier(client, "exq", time.Hour, 24*time.Hour)
	ctx := context.Background()

	outcome := &job.Outcome{
		JID:         "job456",
		Success:     false,
		Error:       "something went wrong",
		CompletedAt: time.Now().Truncate(time.Second),
		Duration:    2 * time.Second,
	}

	if err := n.StoreOutcome(ctx, outcome); err != nil {
		t.Fatalf("StoreOutcome() error = %v", err)
	}

	got, err := n.GetOutcome(ctx, "job456")
	if err != nil {
		t.Fatalf("GetOutcome() error = %v", err)
	}
	if got.Success {
		t.Errorf("Success = true, want false")
	}
	if got.Error != outcome.Error {
		t.Errorf("Error = %v, want %v", got.Error, outcome.Error)
	}
}

func TestRedisNotifier_GetOutcome_NotFound(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	n := NewRedisNotifier(client, "exq", time.Hour, 24*time.Hour)
	got, err := n.GetOutcome(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetOutcome() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetOutcome() = %v, want nil", got)
	}
}

func TestRedisNotifier_WaitForOutcome_AlreadyExists(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	n := NewRedisNotifier(client, "exq", time.Hour, 24*time.Hour)
	ctx := context.Background()

	outcome := &job.Outcome{JID: "job789", Success: true, CompletedAt: time.Now(), Duration: time.Second}
	if err := n.StoreOutcome(ctx, outcome); err != nil {
		t.Fatalf("StoreOutcome() error = %v", err)
	}

	got, err := n.WaitForOutcome(ctx, "job789", 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForOutcome() error = %v", err)
	}
	if got == nil || got.JID != "job789" {
		t.Fatalf("WaitForOutcome() = %v, want jid job789", got)
	}
}

func TestRedisNotifier_WaitForOutcome_Timeout(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	n := NewRedisNotifier(client, "exq", time.Hour, 24*time.Hour)
	start := time.Now()
	got, err := n.WaitForOutcome(context.Background(), "never-exists", 300*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("WaitForOutcome() error = %v", err)
	}
	if got != nil {
		t.Errorf("WaitForOutcome() = %v, want nil", got)
	}
	if elapsed < 250*time.Millisecond {
		t.Errorf("WaitForOutcome() duration = %v, expected ~300ms", elapsed)
	}
}

func TestRedisNotifier_WaitForOutcome_Notified(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	n := NewRedisNotifier(client, "exq", time.Hour, 24*time.Hour)
	ctx := context.Background()
	jid := "job-notify"

	resultCh := make(chan *job.Outcome, 1)
	errCh := make(chan error, 1)

	go func() {
		got, err := n.WaitForOutcome(ctx, jid, 5*time.Second)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- got
	}()

	time.Sleep(100 * time.Millisecond)

	outcome := &job.Outcome{JID: jid, Success: true, CompletedAt: time.Now(), Duration: time.Second}
	if err := n.StoreOutcome(ctx, outcome); err != nil {
		t.Fatalf("StoreOutcome() error = %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("WaitForOutcome() error = %v", err)
	case got := <-resultCh:
		if got == nil || got.JID != jid {
			t.Fatalf("WaitForOutcome() = %v, want jid %v", got, jid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForOutcome() timed out")
	}
}

func TestRedisNotifier_DeleteOutcome(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	n := NewRedisNotifier(client, "exq", time.Hour, 24*time.Hour)
	ctx := context.Background()

	outcome := &job.Outcome{JID: "job-delete", Success: true, CompletedAt: time.Now(), Duration: time.Second}
	if err := n.StoreOutcome(ctx, outcome); err != nil {
		t.Fatalf("StoreOutcome() error = %v", err)
	}

	if err := n.DeleteOutcome(ctx, "job-delete"); err != nil {
		t.Fatalf("DeleteOutcome() error = %v", err)
	}

	got, err := n.GetOutcome(ctx, "job-delete")
	if err != nil {
		t.Fatalf("GetOutcome() after delete error = %v", err)
	}
	if got != nil {
		t.Error("outcome should not exist after deletion")
	}
}
