// Package apperr provides the typed error taxonomy shared by the outreach core.
// Core operations return these errors synchronously; the HTTP layer maps each
// Kind to a status code and surfaces the Reason to collaborators.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an outreach error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	// KindConflict means the request races or repeats a terminal transition.
	KindConflict
	// KindPolicyViolation is an action refused by a safety rule: paused
	// channel, safe mode, opted-out lead, missing review decision.
	KindPolicyViolation
	// KindTransient is a collaborator failure the caller may retry.
	KindTransient
	// KindCorrupted is persisted state that breaks an invariant.
	KindCorrupted
)

// Error carries a Kind for HTTP mapping and a machine-readable Reason.
type Error struct {
	Kind    Kind
	Message string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the Kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindPolicyViolation:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WithReason sets the rejection reason.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

func NotFound(message string) *Error   { return &Error{Kind: KindNotFound, Message: message} }
func Validation(message string) *Error { return &Error{Kind: KindValidation, Message: message} }
func Conflict(message string) *Error   { return &Error{Kind: KindConflict, Message: message} }

// PolicyViolation creates a policy rejection carrying its reason.
func PolicyViolation(reason, message string) *Error {
	return &Error{Kind: KindPolicyViolation, Message: message, Reason: reason}
}

// Transient wraps a collaborator failure.
func Transient(message string, err error) *Error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// Corrupted reports a persisted invariant violation.
func Corrupted(reason, message string) *Error {
	return &Error{Kind: KindCorrupted, Message: message, Reason: reason}
}

// GetKind returns the Kind of the first *Error in the chain, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the reason of the first *Error in the chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return GetKind(err) == kind }
