// Package apperr defines the tagged error kinds that flow from the core
// domain packages up to the Ingress HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories carried internally and mapped to
// HTTP status codes at the Ingress boundary only.
type Kind string

const (
	InvalidTarget       Kind = "InvalidTarget"
	UnsupportedScanner  Kind = "UnsupportedScanner"
	NotFound            Kind = "NotFound"
	IllegalTransition   Kind = "IllegalTransition"
	QueueUnavailable    Kind = "QueueUnavailable"
	StoreUnavailable    Kind = "StoreUnavailable"
	ScannerExecFailed   Kind = "ScannerExecutionFailed"
	ScannerTimeout      Kind = "ScannerTimeout"
	ScannerParseError   Kind = "ScannerParseError"
)

// Error is the tagged value propagated by the scan service, dispatcher,
// and result processor. It is not a replacement for Go's error wrapping —
// Cause still carries the underlying error for logging and %w-style
// inspection.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is, or wraps, an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
