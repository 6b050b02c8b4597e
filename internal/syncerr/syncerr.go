// Package syncerr defines the tagged error taxonomy shared by the sync engine
// and its transport. Callers classify failures with KindOf and match sentinel
// values with errors.Is; retry eligibility is derived from the kind alone.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure.
type Kind string

const (
	// KindNetwork marks transient transport failures (timeouts, connection
	// resets, 5xx responses). Retryable.
	KindNetwork Kind = "network_error"

	// KindValidation marks malformed or rejected payloads. Not retryable.
	KindValidation Kind = "validation_error"

	// KindDatabase marks local persistence failures. Not retryable without
	// intervention.
	KindDatabase Kind = "database_error"

	// KindNotFound marks a referenced record missing remotely. Not retryable.
	KindNotFound Kind = "not_found"

	// KindTransaction marks a failed local atomic apply. Surfaced for
	// investigation, never retried automatically.
	KindTransaction Kind = "transaction_error"
)

var (
	// ErrSyncInProgress is returned when a sync cycle is requested while
	// another one is still running (single-flight contract).
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Error is a classified sync failure. The zero Kind is treated as KindNetwork
// nowhere; construct values through New or Wrap.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns a classified error without an underlying cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an existing error. A nil cause returns nil.
func Wrap(kind Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind from err. Unclassified errors report KindNetwork:
// an error we cannot attribute is most likely environmental, and treating it
// as transient keeps a flaky cycle retryable instead of alarming the user.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindNetwork
}

// Retryable reports whether err is worth retrying. Only network-class errors
// qualify; validation, not-found and persistence failures cannot succeed on a
// second attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindNetwork
}
