// Package udlerrors defines the error taxonomy shared by every layer of the
// data layer: store, pipeline, webhooks, and remote sync. It mirrors the
// pkg/errors AppError shape, generalized from a three-kind
// (validation/not-found/internal) taxonomy to the nine kinds the data
// layer needs.
package udlerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an error the way callers at an HTTP boundary need to
// react to it. It is not a type name — multiple components raise the same
// Kind for different reasons.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindAlreadyExists    Kind = "ALREADY_REGISTERED"
	KindSignatureInvalid Kind = "SIGNATURE_INVALID"
	KindPayloadTooLarge  Kind = "PAYLOAD_TOO_LARGE"
	KindTransientIO      Kind = "TRANSIENT_IO"
	KindRemoteUnreachable Kind = "REMOTE_UNREACHABLE"
	KindPluginSource     Kind = "PLUGIN_SOURCE_FAILURE"
	KindInternal         Kind = "INTERNAL"
)

// Error is the data layer's single error type. Every internal failure that
// crosses a package boundary should be (or wrap) one of these so that HTTP
// handlers and callers can branch on Kind without string matching.
type Error struct {
	Kind     Kind
	Resource string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithResource tags the error with the resource kind it concerns (node,
// webhook, cache, ...). It returns a copy so shared sentinel errors stay
// immutable.
func (e *Error) WithResource(resource string) *Error {
	cp := *e
	cp.Resource = resource
	return &cp
}

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation builds a ValidationError: malformed input, never mutates state.
func Validation(message string) *Error { return newErr(KindValidation, message) }

// NotFound builds a NotFound error for an absent node/plugin/webhook target.
func NotFound(message string) *Error { return newErr(KindNotFound, message) }

// AlreadyExists builds an AlreadyRegistered error (duplicate plugin
// registration, duplicate create via the default webhook handler).
func AlreadyExists(message string) *Error { return newErr(KindAlreadyExists, message) }

// SignatureInvalid builds a webhook-signature rejection.
func SignatureInvalid(message string) *Error { return newErr(KindSignatureInvalid, message) }

// PayloadTooLarge builds a body-size-guard rejection.
func PayloadTooLarge(message string) *Error { return newErr(KindPayloadTooLarge, message) }

// TransientIO builds a recoverable I/O failure: cache save, remote fetch
// 5xx. Callers should log and continue rather than abort.
func TransientIO(message string, cause error) *Error {
	return &Error{Kind: KindTransientIO, Message: message, Err: cause}
}

// RemoteUnreachable builds an error for a failed reachability probe.
func RemoteUnreachable(message string, cause error) *Error {
	return &Error{Kind: KindRemoteUnreachable, Message: message, Err: cause}
}

// PluginSource builds an error for a plugin's SourceNodes hook failing.
func PluginSource(plugin string, cause error) *Error {
	return &Error{Kind: KindPluginSource, Resource: plugin, Message: "source hook failed", Err: cause}
}

// Internal builds a fatal, unrecoverable error (port binding, corrupted
// persistent state without operator opt-out).
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// Wrap attaches additional context to err, preserving its Kind when err is
// already one of ours, otherwise classifying it as internal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return &Error{Kind: e.Kind, Resource: e.Resource, Message: fmt.Sprintf("%s: %s", message, e.Message), Err: e.Err}
	}
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// HTTPStatus maps a Kind to the status code §6/§7 prescribe at the HTTP
// boundary. Kinds with no HTTP exposure (TransientIO, PluginSourceFailure)
// fall back to 500, since they should never escape to a handler uncaught.
func HTTPStatus(err error) int {
	e, ok := err.(*Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindSignatureInvalid:
		return http.StatusUnauthorized
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRemoteUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
