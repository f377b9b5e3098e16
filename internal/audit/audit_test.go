package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"toolvault.org/internal/obs"
)

func TestEmitWritesStructuredLine(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := WithRequestID(context.Background(), "req-123")
	Emit(ctx, Entry{
		ID:            "a1",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Actor:         "u1",
		Action:        "movement.complete",
		EntityType:    "movement",
		EntityID:      "m1",
		AssetID:       "as1",
		PreviousValue: "approved",
		NewValue:      "completed",
	})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if line["type"] != "audit" {
		t.Fatalf("unexpected type: %v", line["type"])
	}
	if line["action"] != "movement.complete" {
		t.Fatalf("unexpected action: %v", line["action"])
	}
	if line["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", line["request_id"])
	}
	if line["asset_id"] != "as1" {
		t.Fatalf("unexpected asset id: %v", line["asset_id"])
	}
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := WithRequestID(context.Background(), "   ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}
