// Package apperr defines the error taxonomy shared by the agent's
// components, per the propagation policy described for the RPC surface:
// handlers return a structured precondition error before any work begins,
// and once work has begun, failures flow into the action-frame stream
// instead.
package apperr

import "errors"

// Code classifies an error for the purpose of mapping it onto an RPC
// status and deciding whether it mutates state.
type Code string

const (
	CodeConfigInvalid     Code = "config_invalid"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeReleaseNotFound   Code = "release_not_found"
	CodeAuthUnavailable   Code = "auth_unavailable"
	CodeRepoUnavailable   Code = "repo_unavailable"
	CodeStorageMissing    Code = "storage_missing"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeScriptFailed      Code = "script_failed"
	CodeProcessIOError    Code = "process_io_error"
	CodeChildStreamError  Code = "child_stream_error"
	CodeLinkFailed        Code = "link_failed"
	CodeNothingToRollBackTo Code = "nothing_to_roll_back_to"
	CodeInternal          Code = "internal"
)

// Error is a structured, coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a coded error with no wrapped cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a coded error around an existing cause.
func Wrap(code Code, message string, err error) error {
	if err == nil {
		return New(code, message)
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err, defaulting to CodeInternal for
// errors that were never classified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsFailedPrecondition reports whether err (or a wrapped cause) carries
// the FailedPrecondition code.
func IsFailedPrecondition(err error) bool {
	return CodeOf(err) == CodeFailedPrecondition
}
