// Package errors defines the error taxonomy shared by the index, query and
// HTTP layers. Callers classify failures with errors.Is against the
// sentinels below; AppError attaches a human readable reason and an HTTP
// status to a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfig reports malformed field/occurrence lists, invalid settings or
	// an analyzer fingerprint that does not match the index.
	ErrConfig = errors.New("configuration error")
	// ErrStorage reports an I/O failure on the backing medium.
	ErrStorage = errors.New("storage error")
	// ErrLocked reports that another writer holds the index location.
	ErrLocked = errors.New("index locked by another writer")
	// ErrParse reports malformed query syntax.
	ErrParse = errors.New("query parse error")
	// ErrClosed reports use of a writer or reader after Close.
	ErrClosed = errors.New("handle already closed")
	// ErrNotFound reports a missing document or index.
	ErrNotFound = errors.New("not found")
	// ErrTimeout reports an operation abandoned by the caller's deadline.
	ErrTimeout = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Configf builds a configuration error.
func Configf(format string, args ...any) *AppError {
	return Newf(ErrConfig, http.StatusBadRequest, format, args...)
}

// Parsef builds a query parse error.
func Parsef(format string, args ...any) *AppError {
	return Newf(ErrParse, http.StatusBadRequest, format, args...)
}

// Storage wraps an I/O failure so that it matches ErrStorage while keeping
// the underlying cause reachable through errors.Is/As.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConfig), errors.Is(err, ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, ErrLocked):
		return http.StatusConflict
	case errors.Is(err, ErrStorage), errors.Is(err, ErrTimeout), errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
