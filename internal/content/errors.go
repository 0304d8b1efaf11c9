package content

import (
	"errors"
	"fmt"
)

// Kind classifies a failed mutation so callers can decide whether to retry.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindStore      Kind = "store"
)

// Sentinels matched through errors.Is against any *Error of the same kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrStore      = errors.New("store failure")
)

// ErrDuplicateKey is returned by Store implementations when a unique index rejects a write.
var ErrDuplicateKey = errors.New("duplicate key")

// Error is the error type returned by Service operations.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrStore:
		return e.Kind == KindStore
	}
	return false
}

// Retriable reports whether resubmitting the unmodified request may succeed.
func (e *Error) Retriable() bool {
	return e.Kind == KindConflict || e.Kind == KindStore
}

func validationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Reason: fmt.Sprintf(format, args...)}
}

func notFoundError(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// storeError maps a Store failure onto the taxonomy. Duplicate keys become
// conflicts carrying conflictReason; errors that are already classified pass through.
func storeError(op, conflictReason string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, ErrDuplicateKey) {
		return &Error{Kind: KindConflict, Op: op, Reason: conflictReason, Err: err}
	}
	if errors.Is(err, ErrNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Reason: "content item not found", Err: err}
	}
	return &Error{Kind: KindStore, Op: op, Reason: "store operation failed", Err: err}
}

// Reason returns the user-facing reason for err, or a generic message for unclassified errors.
func Reason(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Reason != "" {
			return ce.Reason
		}
		return string(ce.Kind)
	}
	if err == nil {
		return ""
	}
	return "internal error"
}
