package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/familyships/familyships/pkg/familyships/graph"
	"github.com/familyships/familyships/pkg/familyships/relations"
	"github.com/familyships/familyships/pkg/familyships/store"
	"github.com/gin-gonic/gin"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Retryable  bool
	Internal   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	cp := *e
	cp.Internal = err
	return &cp
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// New creates a new application error
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

var (
	ErrUnauthorized = New(http.StatusUnauthorized, "unauthorized", "Authentication required")
	ErrInvalidToken = New(http.StatusUnauthorized, "invalid_token", "Invalid or expired token")

	ErrNotFound         = New(http.StatusNotFound, "not_found", "Not found")
	ErrAlreadyLinked    = New(http.StatusConflict, "already_linked", "Link already exists")
	ErrWouldCreateCycle = New(http.StatusConflict, "would_create_cycle", "Link would make a person their own ancestor")

	ErrBadRequest = New(http.StatusBadRequest, "bad_request", "Invalid request")

	ErrRateLimited = &Error{
		HTTPStatus: http.StatusTooManyRequests,
		Code:       "rate_limited",
		Message:    "Too many requests",
		Retryable:  true,
	}

	ErrUnavailable = &Error{
		HTTPStatus: http.StatusInternalServerError,
		Code:       "store_unavailable",
		Message:    "Storage is temporarily unavailable",
		Retryable:  true,
	}
	ErrInternal = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
)

// FromError maps a domain error onto its HTTP representation. Unauthorized
// access and missing records share one response so callers cannot discover
// other users' ids.
func FromError(err error) *Error {
	var appErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, relations.ErrNotAuthorized), errors.Is(err, store.ErrNotFound):
		return ErrNotFound.WithInternal(err)
	case errors.Is(err, relations.ErrInvalidInput):
		return ErrBadRequest.WithMessage(err.Error())
	case errors.Is(err, graph.ErrAlreadyLinked):
		return ErrAlreadyLinked.WithInternal(err)
	case errors.Is(err, graph.ErrWouldCreateCycle):
		return ErrWouldCreateCycle.WithInternal(err)
	case errors.Is(err, store.ErrUnavailable):
		return ErrUnavailable.WithInternal(err)
	default:
		return ErrInternal.WithInternal(err)
	}
}

// Body is the JSON envelope of an error response.
func (e *Error) Body() gin.H {
	body := gin.H{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Retryable {
		body["retryable"] = true
	}
	return gin.H{"error": body}
}

// Respond aborts the request with the mapped error. The original error is
// attached to the gin context for the request logger and never sent.
func Respond(c *gin.Context, err error) {
	appErr := FromError(err)
	if appErr == nil {
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Body())
}
