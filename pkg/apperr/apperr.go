package apperr

import (
	"errors"
	"net/http"
)

// Error is a service-layer error carrying the HTTP status the handler should
// respond with. Anything that is not an *Error surfaces as a generic 500.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New builds an error with an explicit status code.
func New(code int, message string) error {
	return &Error{Code: code, Message: message}
}

func BadRequest(message string) error   { return New(http.StatusBadRequest, message) }
func Unauthorized(message string) error { return New(http.StatusUnauthorized, message) }
func Forbidden(message string) error    { return New(http.StatusForbidden, message) }
func NotFound(message string) error     { return New(http.StatusNotFound, message) }
func Conflict(message string) error     { return New(http.StatusConflict, message) }
func Gone(message string) error         { return New(http.StatusGone, message) }

// Status resolves err to a status code and client-safe message.
func Status(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, e.Message
	}
	return http.StatusInternalServerError, "Internal server error"
}
