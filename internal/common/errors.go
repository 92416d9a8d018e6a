package common

import (
	"errors"
	"net/http"
)

// AppError is a failure that already knows how it should look on the wire:
// a stable code, a client-safe message and an HTTP status. Err keeps the
// underlying cause for logs and errors.Is.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any

	parent *AppError
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap returns a copy of e carrying cause. The copy still matches e with
// errors.Is, so package sentinels can be wrapped without losing identity.
func (e *AppError) Wrap(cause error) *AppError {
	c := *e
	c.Err = cause
	c.parent = e
	return &c
}

// Is matches the sentinel a wrapped copy was made from.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e != nil && e.parent != nil && t == e.parent
}

// NewAppError constructs an AppError; a zero status means 500.
func NewAppError(code, message string, status int, err error) *AppError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError reports whether err carries an AppError anywhere in its chain.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
