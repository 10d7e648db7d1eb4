package domainerrors

import "errors"

// Code represents a gatekeeper error category independent of transport layer.
// Codes describe the failure class (policy, authorization, validation, data, internal),
// not the HTTP status it is eventually rendered as.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"

	// Policy rejections: recoverable by the client via backoff.
	CodeRateLimited Code = "rate_limited"
	CodeSuspicious  Code = "suspicious_activity"

	// Data-access failures escalated after the retry budget is spent.
	CodeUnavailable Code = "unavailable"
)

// Error wraps gatekeeper or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across limiter, session, gateway and handler layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error in the chain,
// or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsPolicyRejection reports whether err is a rate-limit or abuse verdict.
// Policy rejections are expected traffic outcomes and are never logged as application errors.
func IsPolicyRejection(err error) bool {
	return HasCode(err, CodeRateLimited) || HasCode(err, CodeSuspicious)
}
