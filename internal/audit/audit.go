// Package audit defines the append-only ledger entry written with every
// successful lifecycle transition. Entries are created exclusively by the
// orchestrator inside the same atomic unit as the status change they
// describe, and are never updated or deleted.
package audit

import (
	"context"
	"strings"
	"time"

	"toolvault.org/internal/obs"
)

// Entry is one immutable record of a successful state transition.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         string    `json:"actor"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	AssetID       string    `json:"asset_id"`
	PreviousValue string    `json:"previous_value"`
	NewValue      string    `json:"new_value"`
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so emitted
// entries can be correlated with HTTP access logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Emit writes the committed entry as one structured JSON log line. The
// durable copy lives in the repository; this is the operational feed.
func Emit(ctx context.Context, e Entry) {
	line := map[string]any{
		"ts":          e.Timestamp.UTC().Format(time.RFC3339Nano),
		"type":        "audit",
		"action":      e.Action,
		"actor":       e.Actor,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"asset_id":    e.AssetID,
		"previous":    e.PreviousValue,
		"new":         e.NewValue,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		line["request_id"] = rid
	}
	obs.LogJSON(line)
}
