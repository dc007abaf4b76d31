// Package errs defines the error taxonomy shared by the archive, sampling and
// job pipeline packages. Callers test with errors.Is against the sentinels.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed date, time or tag input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound means no frame or record matched a required selection.
	ErrNotFound = errors.New("not found")
	// ErrArchiveUnavailable wraps listing or fetch failures of the frame archive.
	ErrArchiveUnavailable = errors.New("archive unavailable")
	// ErrInsufficientFrames is returned when a video would have fewer than 2 frames.
	ErrInsufficientFrames = errors.New("insufficient frames")
	// ErrEncodeFailure wraps errors of the external encoder at any stage.
	ErrEncodeFailure = errors.New("encode failure")
	// ErrJobActive rejects operations on jobs that have not reached a terminal state.
	ErrJobActive = errors.New("job is still active")
)

// Validation builds an ErrValidation with a descriptive message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound builds an ErrNotFound with a descriptive message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Unavailable wraps a storage error as ErrArchiveUnavailable. A nil err stays nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrArchiveUnavailable, op, err)
}

// Encode wraps an encoder error for the named stage. A nil err stays nil.
func Encode(stage string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrEncodeFailure, stage, err)
}

// HTTPStatus maps an error from the taxonomy to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFrames):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrJobActive):
		return http.StatusConflict
	case errors.Is(err, ErrArchiveUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
