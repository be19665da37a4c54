// Package errors maps failures onto typed, HTTP-aware errors for the admin API.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

// ErrorType is the category of an error, used for the response body and status code.
type ErrorType string

const (
	TypeValidation  ErrorType = "validation"  // 400
	TypeNotFound    ErrorType = "not_found"   // 404
	TypeConflict    ErrorType = "conflict"    // 409
	TypeInternal    ErrorType = "internal"    // 500
	TypeExternal    ErrorType = "external"    // 502
	TypeUnavailable ErrorType = "unavailable" // 503
)

// Error is a structured error with a type, a client-facing message and log context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExternal:
		return http.StatusBadGateway
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func ValidationError(message string) *Error { return newError(TypeValidation, message, nil) }

func NotFoundError(message string) *Error { return newError(TypeNotFound, message, nil) }

func ConflictError(message string) *Error { return newError(TypeConflict, message, nil) }

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

// WithField adds a context field (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Type: e.Type, Context: e.Context}
}

// AsStructuredError converts any error into an *Error. Structured errors anywhere in the
// chain are returned as is; known domain failures get their own type; anything else
// becomes an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}

	var connErr *domain.ConnectionError
	var effectErr *domain.EffectCallError
	switch {
	case errors.Is(err, domain.ErrInvalidTag):
		return ValidationError(err.Error())
	case errors.Is(err, domain.ErrSelfTag):
		return ConflictError(err.Error())
	case errors.Is(err, domain.ErrSessionStopped):
		return UnavailableError("session is not running", err)
	case errors.Is(err, domain.ErrNotConnected), errors.As(err, &connErr):
		return UnavailableError("remote store unavailable", err)
	case errors.As(err, &effectErr):
		return ExternalError("voice client call failed", err).WithField("identity", string(effectErr.ID))
	}

	return InternalError("internal server error", err)
}
