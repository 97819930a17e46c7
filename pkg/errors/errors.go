package errors

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrInvalidEncoding  = errors.New("invalid character encoding")
	ErrEmptyQuery       = errors.New("empty request")
	ErrServerBusy       = errors.New("server too busy")
	ErrCorpusUnreadable = errors.New("corpus unreadable")
	ErrEngineUnknown    = errors.New("unknown search algorithm")
	ErrInternal         = errors.New("internal error")
)

// Wire protocol response lines. Every server reply is exactly one of these.
const (
	ResponseFound           = "STRING EXISTS\n"
	ResponseNotFound        = "STRING NOT FOUND\n"
	ResponsePayloadTooLarge = "ERROR: Payload too large\n"
	ResponseInvalidEncoding = "ERROR: Invalid character encoding\n"
	ResponseEmptyRequest    = "ERROR: Empty request\n"
	ResponseServerBusy      = "ERROR: Server too busy\n"
	ResponseInternal        = "ERROR: Internal server error\n"
)

type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// ResponseLine maps an error to the fixed response line written to the
// client. Engine and I/O faults that have no dedicated line collapse to the
// internal-error response.
func ResponseLine(err error) string {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return ResponsePayloadTooLarge
	case errors.Is(err, ErrInvalidEncoding):
		return ResponseInvalidEncoding
	case errors.Is(err, ErrEmptyQuery):
		return ResponseEmptyRequest
	case errors.Is(err, ErrServerBusy):
		return ResponseServerBusy
	default:
		return ResponseInternal
	}
}

// Terminal reports whether the error ends the connection after the response
// is written. Empty requests keep the session open; everything else in the
// protocol taxonomy closes it.
func Terminal(err error) bool {
	return !errors.Is(err, ErrEmptyQuery)
}
