// Package apperr defines the error kinds that cross package boundaries and
// map onto HTTP status codes at the API edge.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStale
	KindUnavailable
	KindBadGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStale:
		return "stale"
	case KindUnavailable:
		return "unavailable"
	case KindBadGateway:
		return "bad_gateway"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to its response code. Conflicts answer 400; only a
// stale version check answers 409.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStale:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// External reports whether the kind describes a workflow engine failure.
func (k Kind) External() bool {
	return k == KindUnavailable || k == KindBadGateway
}

// Error is a classified error with optional detail for the response body.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Count   *int
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithFields records which input fields were at fault.
func (e *Error) WithFields(fields ...string) *Error {
	e.Fields = append(e.Fields, fields...)
	return e
}

// WithCount attaches a reference count, used by deletion guards.
func (e *Error) WithCount(n int) *Error {
	e.Count = &n
	return e
}

// WithDetail attaches a diagnostic snippet, such as an upstream body.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation reports bad input.
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, nil, format, args...)
}

// NotFound reports a missing entity.
func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

// Conflict reports an operation blocked by existing state.
func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, nil, format, args...)
}

// Stale reports an optimistic concurrency mismatch.
func Stale(format string, args ...any) *Error {
	return newf(KindStale, nil, format, args...)
}

// Unavailable reports that the engine could not be reached.
func Unavailable(err error, format string, args ...any) *Error {
	return newf(KindUnavailable, err, format, args...)
}

// BadGateway reports that the engine answered with an unusable response.
func BadGateway(err error, format string, args ...any) *Error {
	return newf(KindBadGateway, err, format, args...)
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) *Error {
	return newf(KindInternal, err, format, args...)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
