// Package storerr defines the error kinds shared by the coordinator's
// request layer and its subsystems, so that any handler can turn a
// returned error into the right HTTP status without string-matching.
package storerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the purpose of picking an HTTP status
// and a response shape. The set is exactly the one spec'd for the
// coordinator: BadRequest, Unauthorized, UnknownAgent, NotFound,
// ValidationFailure, IOFailure, UpstreamFailure, Timeout.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindUnauthorized
	KindUnknownAgent
	KindNotFound
	KindValidationFailure
	KindIOFailure
	KindUpstreamFailure
	KindTimeout
)

// Error is a classified error. Callers compare Kind via errors.As,
// never by inspecting Error()'s text.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

// BadRequest, Unauthorized, etc. are convenience constructors mirroring
// the kinds above.
func BadRequest(format string, args ...any) *Error {
	return New(KindBadRequest, fmt.Sprintf(format, args...))
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, fmt.Sprintf(format, args...))
}

func UnknownAgent(format string, args ...any) *Error {
	return New(KindUnknownAgent, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func ValidationFailure(format string, args ...any) *Error {
	return New(KindValidationFailure, fmt.Sprintf(format, args...))
}

func IOFailure(err error, format string, args ...any) *Error {
	return Wrap(KindIOFailure, fmt.Sprintf(format, args...), err)
}

func UpstreamFailure(err error, format string, args ...any) *Error {
	return Wrap(KindUpstreamFailure, fmt.Sprintf(format, args...), err)
}

func Timeout(format string, args ...any) *Error {
	return New(KindTimeout, fmt.Sprintf(format, args...))
}

// HTTPStatus maps a Kind to the status code the server layer writes.
func HTTPStatus(err error) int {
	var serr *Error
	if !errors.As(err, &serr) {
		return http.StatusInternalServerError
	}
	switch serr.Kind {
	case KindBadRequest, KindValidationFailure:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnknownAgent:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindIOFailure, KindUpstreamFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Message extracts a caller-safe message from err, falling back to a
// generic string for unclassified errors so internals never leak.
func Message(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Message
	}
	return "internal error"
}
