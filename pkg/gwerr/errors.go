// Package gwerr defines the transport-independent error taxonomy shared by
// every component of the gateway. A single Kind maps deterministically to a
// JSON-RPC error code and an HTTP status, so the dispatcher and the HTTP
// handlers never duplicate the mapping in §7 of the specification.
package gwerr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the gateway ever produces.
type Kind int

const (
	// KindInternal covers unhandled faults; the cause is logged server-side
	// only and never echoed to the caller.
	KindInternal Kind = iota
	KindInvalid
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindCapabilityMissing
	KindFeatureDisabled
	KindPluginViolation
	KindTimeout
	KindUnavailable
	KindStale
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "INVALID"
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindCapabilityMissing:
		return "CAPABILITY_MISSING"
	case KindFeatureDisabled:
		return "FEATURE_DISABLED"
	case KindPluginViolation:
		return "PLUGIN_VIOLATION"
	case KindTimeout:
		return "TIMEOUT"
	case KindUnavailable:
		return "UNAVAILABLE"
	case KindStale:
		return "STALE"
	default:
		return "INTERNAL"
	}
}

// PluginDetail carries the extra fields a PluginViolation error attaches to
// JSON-RPC error.data.plugin / error.data.code per spec.md §4.3 and §7.
type PluginDetail struct {
	Plugin      string
	Code        string
	Reason      string
	Description string
}

// Error is the single error type every component returns. It always carries
// a RequestID for correlation (spec.md §7: "all errors carry request_id").
type Error struct {
	Kind      Kind
	Message   string
	RequestID string
	Plugin    *PluginDetail
	cause     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a bare Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause while classifying the externally visible kind.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithRequestID returns a copy of e carrying the given correlation id.
func (e *Error) WithRequestID(id string) *Error {
	cp := *e
	cp.RequestID = id
	return &cp
}

// Violation builds a PluginViolation error with the §4.3 violation fields.
func Violation(detail PluginDetail) *Error {
	return &Error{
		Kind:    KindPluginViolation,
		Message: "plugin violation",
		Plugin:  &detail,
	}
}

// KindOf extracts the Kind of err, defaulting to KindInternal for anything
// that isn't a *Error produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// JSONRPCCode returns the numeric JSON-RPC 2.0 error code for e's Kind, per
// spec.md §7/§6 "Wire-format invariants".
func (e *Error) JSONRPCCode() int {
	switch e.Kind {
	case KindInvalid:
		return -32602
	case KindCapabilityMissing, KindFeatureDisabled:
		return -32601
	case KindInternal:
		return -32603
	default:
		// Forbidden, NotFound, Conflict, PluginViolation, Timeout,
		// Unavailable, Stale, Unauthenticated all surface as the
		// server-defined -32000 band, disambiguated by data.code.
		return -32000
	}
}

// JSONRPCData returns the error.data payload for e: always data.code (the
// Kind name), plus request_id and plugin when set.
func (e *Error) JSONRPCData() map[string]any {
	data := map[string]any{"code": e.Kind.String()}
	if e.RequestID != "" {
		data["request_id"] = e.RequestID
	}
	if e.Plugin != nil {
		data["plugin"] = map[string]any{
			"name":        e.Plugin.Plugin,
			"code":        e.Plugin.Code,
			"reason":      e.Plugin.Reason,
			"description": e.Plugin.Description,
		}
	}
	return data
}

// HTTPStatus returns the HTTP status code for e's Kind per spec.md §7.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalid:
		return 400
	case KindUnauthenticated:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindConflict, KindStale:
		return 409
	case KindUnavailable:
		return 503
	case KindCapabilityMissing, KindFeatureDisabled:
		return 501
	case KindTimeout:
		return 504
	case KindInternal:
		return 500
	default:
		return 500
	}
}

// RetryAfterSeconds returns the Retry-After hint for Unavailable errors, or
// 0 if none applies.
func (e *Error) RetryAfterSeconds() int {
	if e.Kind == KindUnavailable {
		return 30
	}
	return 0
}
