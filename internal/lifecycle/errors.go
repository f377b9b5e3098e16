package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation. The core returns kinds plus structured
// context; human-facing messages belong to the caller.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindDuplicateActive   Kind = "duplicate_active"
	KindConflict          Kind = "conflict"
	KindValidation        Kind = "validation"
	KindAssetRetired      Kind = "asset_retired"
	KindBusy              Kind = "busy"
)

// Error is the structured failure returned by every orchestrator operation.
type Error struct {
	Kind       Kind
	EntityType string
	EntityID   string
	Status     string // entity status at the time of the attempt
	Action     string // attempted action
	Field      string // offending field for validation failures

	cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("lifecycle: %s", e.Kind)
	if e.EntityType != "" {
		msg += " " + e.EntityType
	}
	if e.EntityID != "" {
		msg += " " + e.EntityID
	}
	if e.Status != "" {
		msg += fmt.Sprintf(" (status=%s)", e.Status)
	}
	if e.Action != "" {
		msg += fmt.Sprintf(" (action=%s)", e.Action)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field=%s)", e.Field)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the caller may retry the same call unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindBusy
}

// KindOf extracts the failure kind, or "" for unclassified errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

func errNotFound(entityType, id string) *Error {
	return &Error{Kind: KindNotFound, EntityType: entityType, EntityID: id}
}

func errForbidden(action string) *Error {
	return &Error{Kind: KindForbidden, Action: action}
}

func errInvalidTransition(entityType, id, status, action string) *Error {
	return &Error{Kind: KindInvalidTransition, EntityType: entityType, EntityID: id, Status: status, Action: action}
}

func errDuplicateActive(entityType, assetID string) *Error {
	return &Error{Kind: KindDuplicateActive, EntityType: entityType, EntityID: assetID}
}

func errConflict(assetID, action string) *Error {
	return &Error{Kind: KindConflict, EntityType: "asset", EntityID: assetID, Action: action}
}

func errValidation(field string) *Error {
	return &Error{Kind: KindValidation, Field: field}
}

func errRetired(assetID, action string) *Error {
	return &Error{Kind: KindAssetRetired, EntityType: "asset", EntityID: assetID, Action: action}
}

func errBusy(assetID, action string) *Error {
	return &Error{Kind: KindBusy, EntityType: "asset", EntityID: assetID, Action: action}
}

// errLockWait classifies an abandoned lock wait as busy while preserving
// the context error for errors.Is.
func errLockWait(assetID string, cause error) *Error {
	return &Error{Kind: KindBusy, EntityType: "asset", EntityID: assetID, Action: "lock", cause: cause}
}
