// Package apperr defines the error taxonomy shared across every component.
//
// Component boundaries translate infrastructure errors into one of these
// Kinds; only the Cognitive Pipeline and the Gateway translate a Kind into a
// user-visible frame or HTTP status. No error text from a backend or IdP is
// ever forwarded verbatim to a caller.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the taxonomy of §7.
type Kind string

const (
	Unauthenticated    Kind = "UNAUTHENTICATED"
	Forbidden          Kind = "FORBIDDEN"
	TenantUnknown      Kind = "TENANT_UNKNOWN"
	TenantInvalid      Kind = "TENANT_PROFILE_INVALID"
	BackendUnavailable Kind = "BACKEND_UNAVAILABLE"
	BackendConflict    Kind = "BACKEND_CONFLICT"
	BackendMisconfig   Kind = "BACKEND_MISCONFIGURED"
	EmbedderUnavail    Kind = "EMBEDDER_UNAVAILABLE"
	ProviderUnavail    Kind = "PROVIDER_UNAVAILABLE"
	QueryCanceled      Kind = "QUERY_CANCELED"
	RetrievalFailed    Kind = "RETRIEVAL_FAILED"
	Internal           Kind = "INTERNAL_ERROR"
)

// Error wraps a Kind with a cause and an optional action name, used by
// Forbidden to report which authorization predicate rejected the request.
type Error struct {
	Kind   Kind
	Action string
	Cause  error
}

func (e *Error) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Action, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, apperr.Forbidden) style checks by comparing Kind
// sentinels constructed via New(kind, nil).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind wrapping cause.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Newf builds an *Error of the given kind with a formatted cause.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// WithAction attaches the authorization predicate/action name to a Forbidden
// (or any) error, surfaced to the client per §7.
func WithAction(kind Kind, action string, cause error) *Error {
	return &Error{Kind: kind, Action: action, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to Internal for anything not
// already part of the taxonomy — this is the single translation point a
// component boundary should use when wrapping an infrastructure error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Sentinels for errors.Is comparisons against a bare Kind.
var (
	ErrUnauthenticated    = New(Unauthenticated, nil)
	ErrForbidden          = New(Forbidden, nil)
	ErrTenantUnknown      = New(TenantUnknown, nil)
	ErrBackendUnavailable = New(BackendUnavailable, nil)
	ErrBackendConflict    = New(BackendConflict, nil)
	ErrEmbedderUnavail    = New(EmbedderUnavail, nil)
	ErrProviderUnavail    = New(ProviderUnavail, nil)
	ErrQueryCanceled      = New(QueryCanceled, nil)
	ErrRetrievalFailed    = New(RetrievalFailed, nil)
	ErrInternal           = New(Internal, nil)
)
