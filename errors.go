package ulogger

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a structured error carrying the failing operation, the log id
// involved (if any), a high-level error category, and the wrapped cause.
type Error struct {
	Op    string    // operation that failed, e.g. "symtab.Load", "reassemble"
	LogID int32     // log id involved, -1 if not applicable
	Code  ErrorCode // high-level error category
	Msg   string    // human-readable message
	Inner error     // wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.LogID >= 0 {
		parts = append(parts, fmt.Sprintf("log_id=%d", e.LogID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("ulogger: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("ulogger: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support, matching on error category.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is the high-level error taxonomy from the error handling
// design: artifact errors, frame errors, reassembly errors, and resource
// errors. None of these are fatal to the process; they are surfaced
// upward as dispatch events for the UI to display.
type ErrorCode string

const (
	// Artifact errors: recovered by the watcher staying in failed/waiting.
	CodeNoSection        ErrorCode = "no .logs section"
	CodeTruncatedSection ErrorCode = "truncated .logs section"
	CodeUnknownTypeCode  ErrorCode = "unknown type code"
	CodeArtifactIOError  ErrorCode = "artifact I/O error"

	// Frame errors: coalesced into a single BadData event.
	CodeMalformedFrame ErrorCode = "malformed frame"
	CodeShortFrame     ErrorCode = "short frame"

	// Reassembly errors: same coalescing as frame errors.
	CodeBadID                  ErrorCode = "log id out of range"
	CodeUnexpectedContinuation ErrorCode = "unexpected continuation frame"

	// Resource errors.
	CodeNotReady        ErrorCode = "symbol table not ready"
	CodePortUnavailable ErrorCode = "serial port unavailable"
	CodeChannelClosed   ErrorCode = "dispatch channel closed"
)

// NewError creates a structured error with no log-id context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, LogID: -1, Code: code, Msg: msg}
}

// NewArtifactError creates a structured error for a failure loading or
// parsing the symbol artifact.
func NewArtifactError(op string, code ErrorCode, inner error) *Error {
	msg := string(code)
	if inner != nil {
		msg = inner.Error()
	}
	return &Error{Op: op, LogID: -1, Code: code, Msg: msg, Inner: inner}
}

// NewFrameError creates a structured error for a malformed or short frame.
func NewFrameError(code ErrorCode, inner error) *Error {
	return &Error{Op: "frame", LogID: -1, Code: code, Msg: inner.Error(), Inner: inner}
}

// NewReassemblyError creates a structured error for a reassembly fault
// tied to a specific log id.
func NewReassemblyError(logID uint16, code ErrorCode, inner error) *Error {
	return &Error{Op: "reassemble", LogID: int32(logID), Code: code, Msg: inner.Error(), Inner: inner}
}

// WrapError wraps an existing error with ulogger context, preserving the
// category if the cause is already a structured Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ue *Error
	if errors.As(inner, &ue) {
		return &Error{Op: op, LogID: ue.LogID, Code: ue.Code, Msg: ue.Msg, Inner: ue.Inner}
	}
	return &Error{Op: op, LogID: -1, Code: CodeArtifactIOError, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err (or any error it wraps) is a structured
// Error with the given category.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
