package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestColorTextHandler_HighlightsJID(t *testing.T) {
	var buf bytes.Buffer
	h := newColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "processing job", 0)
	r.AddAttrs(slog.String("jid", "abc123"), slog.String("queue", "default"))

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v, output: %s", err, buf.String())
	}

	jid, ok := decoded["jid"].(string)
	if !ok {
		t.Fatalf("jid field missing or wrong type: %v", decoded["jid"])
	}
	if !bytes.Contains([]byte(jid), []byte("abc123")) {
		t.Errorf("jid field = %q, want to contain %q", jid, "abc123")
	}

	if decoded["queue"] != "default" {
		t.Errorf("queue field = %v, want %q", decoded["queue"], "default")
	}
}

func TestColorTextHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h := newColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled(LevelInfo) = true, want false when min level is warn")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("Enabled(LevelError) = false, want true when min level is warn")
	}
}
