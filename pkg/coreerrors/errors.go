// Package coreerrors defines the closed error taxonomy shared by every
// component of the search engine core. Repositories and services wrap
// low-level errors into one of these kinds; callers classify with
// errors.Is/errors.As instead of inspecting driver-specific error types.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the taxonomy's error classes.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindModelUnavailable Kind = "model_unavailable"
	KindEmbeddingFailed  Kind = "embedding_failed"
	KindStoreError       Kind = "store_error"
	KindSchemaError      Kind = "schema_error"
	KindTimeout          Kind = "timeout"
	KindOverloaded       Kind = "overloaded"
	KindNotFound         Kind = "not_found"
)

// Sentinels for errors.Is comparisons against the Kind alone.
var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrModelUnavailable = &Error{Kind: KindModelUnavailable}
	ErrEmbeddingFailed  = &Error{Kind: KindEmbeddingFailed}
	ErrStoreError       = &Error{Kind: KindStoreError}
	ErrSchemaError      = &Error{Kind: KindSchemaError}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrOverloaded       = &Error{Kind: KindOverloaded}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// Error is the concrete taxonomy error. Transient marks StoreError
// instances that are safe to retry with backoff. RetryAfter carries the
// Overloaded hint, in milliseconds.
type Error struct {
	Kind        Kind
	Op          string
	Transient   bool
	RetryAfter  int
	Cause       error
	Message     string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind only, so errors.Is(err, coreerrors.ErrStoreError)
// works regardless of Op/Cause/Transient.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a taxonomy error wrapping cause with operation context.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Invalid builds an InvalidInput error from a plain message.
func Invalid(op, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: msg}
}

// Store builds a StoreError, recording whether it is safe to retry.
func Store(op string, transient bool, cause error) *Error {
	return &Error{Kind: KindStoreError, Op: op, Transient: transient, Cause: cause}
}

// OverloadedWithRetry builds an Overloaded error carrying a retry hint.
func OverloadedWithRetry(op string, retryAfterMs int) *Error {
	return &Error{Kind: KindOverloaded, Op: op, RetryAfter: retryAfterMs}
}

// IsTransientStoreError reports whether err is a StoreError marked transient.
func IsTransientStoreError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindStoreError && e.Transient
	}
	return false
}
