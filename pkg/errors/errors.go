// Package errors defines the gateway error taxonomy.
//
// Every failure that can reach a client is classified into one of the kinds
// below. Handlers and services return *Error values (or wrap causes into
// them); only the API error decorator turns them into HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error kinds
const (
	// KindNotFound is returned when a requested account, status or list does not exist
	KindNotFound = "not_found"

	// KindUnauthorized is returned for missing, malformed, expired or revoked credentials
	KindUnauthorized = "unauthorized"

	// KindForbidden is returned when a valid token lacks a required scope
	KindForbidden = "forbidden"

	// KindValidation is returned for malformed request bodies and missing fields
	KindValidation = "validation_failed"

	// KindRateLimited is returned when a token bucket is exhausted
	KindRateLimited = "rate_limited"

	// KindUpstream is returned for PDS timeouts, connection failures and upstream 5xx
	KindUpstream = "upstream_unavailable"

	// KindInternal is returned for unanticipated failures
	KindInternal = "internal"

	// KindInvalidGrant is the OAuth error for bad or reused authorization codes
	KindInvalidGrant = "invalid_grant"

	// KindInvalidClient is the OAuth error for unknown clients or secret mismatches
	KindInvalidClient = "invalid_client"

	// KindInvalidScope is the OAuth error for unrecognized scope tokens
	KindInvalidScope = "invalid_scope"
)

// Error represents a classified gateway error.
type Error struct {
	// Kind is one of the Kind* constants.
	Kind string

	// Message is the human-readable description sent to clients for 4xx kinds.
	Message string

	// Field names the offending request field for validation errors.
	Field string

	// RetryAfter is the wait hint for rate_limited errors.
	RetryAfter time.Duration

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new classified error.
func New(kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewNotFound creates a not_found error.
func NewNotFound(message string, cause error) *Error {
	return New(KindNotFound, message, cause)
}

// NewUnauthorized creates an unauthorized error.
func NewUnauthorized(message string, cause error) *Error {
	return New(KindUnauthorized, message, cause)
}

// NewForbidden creates a forbidden error.
func NewForbidden(message string, cause error) *Error {
	return New(KindForbidden, message, cause)
}

// NewValidation creates a validation_failed error for the given field.
func NewValidation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NewRateLimited creates a rate_limited error with a retry hint.
func NewRateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    "Too many requests",
		RetryAfter: retryAfter,
	}
}

// NewUpstream creates an upstream_unavailable error.
func NewUpstream(message string, cause error) *Error {
	return New(KindUpstream, message, cause)
}

// NewInternal creates an internal error.
func NewInternal(message string, cause error) *Error {
	return New(KindInternal, message, cause)
}

// NewInvalidGrant creates an invalid_grant OAuth error.
func NewInvalidGrant(message string) *Error {
	return New(KindInvalidGrant, message, nil)
}

// NewInvalidClient creates an invalid_client OAuth error.
func NewInvalidClient(message string) *Error {
	return New(KindInvalidClient, message, nil)
}

// NewInvalidScope creates an invalid_scope OAuth error.
func NewInvalidScope(message string) *Error {
	return New(KindInvalidScope, message, nil)
}

// KindOf returns the kind of a classified error, or KindInternal for
// anything else (including nil causes wrapped by third parties).
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound checks whether the error is a not_found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsUnauthorized checks whether the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsRateLimited checks whether the error is a rate_limited error.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// IsUpstream checks whether the error is an upstream_unavailable error.
func IsUpstream(err error) bool {
	return KindOf(err) == KindUpstream
}

// HTTPStatus maps a classified error to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindInvalidGrant, KindInvalidClient, KindInvalidScope:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WireCode maps a classified error to the code used in the JSON error body.
// Mastodon clients expect "unprocessable_entity" rather than the internal
// validation kind, and plain "internal_server_error" for everything opaque.
func WireCode(err error) string {
	switch kind := KindOf(err); kind {
	case KindValidation:
		return "unprocessable_entity"
	case KindUpstream:
		return "upstream_unavailable"
	case KindInternal:
		return "internal_server_error"
	default:
		return kind
	}
}

// Description returns the client-facing error description. Internal errors
// never leak their cause.
func Description(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "An unexpected error occurred"
}
