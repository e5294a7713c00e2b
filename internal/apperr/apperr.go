// Package apperr defines operational errors: expected failures that carry
// the HTTP status and the message a client is allowed to see.
//
// Anything that is not an *Error is unexpected. Classify turns an error into
// one of the two outcomes at the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

type Error struct {
	Status  int
	Message string
	cause   error
	pcs     []uintptr
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error       { return e.cause }
func (e *Error) StackPCs() []uintptr { return e.pcs }
func (e *Error) Name() string        { return "AppError" }

// Operational reports true for every *Error; constructing one is the only way
// to mark a failure as operational.
func (e *Error) Operational() bool { return true }

func newError(status int, msg string, cause error) *Error {
	// Callers(2): skip newError and the exported constructor
	return &Error{Status: status, Message: msg, cause: cause, pcs: xerrors.Callers(2)}
}

func New(status int, msg string) error { return newError(status, msg, nil) }

func Newf(status int, format string, args ...any) error {
	return newError(status, fmt.Sprintf(format, args...), nil)
}

// Wrap marks err as operational. The client sees msg only; err is kept for logs.
func Wrap(err error, status int, msg string) error {
	if err == nil {
		return nil
	}
	return newError(status, msg, err)
}

func BadRequest(msg string) error      { return newError(http.StatusBadRequest, msg, nil) }
func NotFound(msg string) error        { return newError(http.StatusNotFound, msg, nil) }
func PayloadTooLarge(msg string) error { return newError(http.StatusRequestEntityTooLarge, msg, nil) }
func Unavailable(msg string) error     { return newError(http.StatusServiceUnavailable, msg, nil) }

// Outcome is the result of classifying an error at the boundary. It is either
// Operational or Unexpected.
type Outcome interface {
	outcome()
}

type Operational struct {
	Status  int
	Message string
	Err     error
}

type Unexpected struct {
	Err error
}

func (Operational) outcome() {}
func (Unexpected) outcome()  {}

// Classify returns Operational when an *Error is anywhere in err's chain and
// Unexpected otherwise. Statuses outside 400..599 become 500.
func Classify(err error) Outcome {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		status := ae.Status
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		return Operational{Status: status, Message: ae.Message, Err: err}
	}
	return Unexpected{Err: err}
}

// StatusOf returns the status Classify would answer with.
func StatusOf(err error) int {
	if op, ok := Classify(err).(Operational); ok {
		return op.Status
	}
	return http.StatusInternalServerError
}
