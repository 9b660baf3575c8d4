// Package apperr defines the error kinds shared by every domain package.
// Domain sentinels wrap one of the kinds below, so callers can match either
// the precise error (order.ErrOrderNotFound) or its kind (apperr.ErrNotFound).
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrExternalService = errors.New("external service error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// New returns an error with the given message that matches kind via errors.Is.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Validation builds a formatted ErrValidation.
func Validation(format string, args ...any) error {
	return New(ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict builds a formatted ErrConflict.
func Conflict(format string, args ...any) error {
	return New(ErrConflict, fmt.Sprintf(format, args...))
}

// External wraps a failed call to a third-party service. The message of err
// is kept so it can be surfaced to the caller.
func External(service string, err error) error {
	return &externalError{service: service, err: err}
}

type externalError struct {
	service string
	err     error
}

func (e *externalError) Error() string {
	return fmt.Sprintf("%s: %v", e.service, e.err)
}

func (e *externalError) Unwrap() []error {
	return []error{ErrExternalService, e.err}
}

// Message returns the client-facing message of err: the text of the
// outermost kind error when there is one, err.Error() otherwise.
func Message(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg
	}
	var ee *externalError
	if errors.As(err, &ee) {
		return ee.Error()
	}
	return err.Error()
}
