// Package apperr defines the error kinds returned by the lifecycle, cascade
// and community services, and how each maps to an HTTP status.
//
// Kinds are sentinel errors. Services wrap them with context:
//
//	return fmt.Errorf("%w: rejection reason is required", apperr.ErrValidation)
//
// and callers match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrPermission            = errors.New("permission denied")
	ErrUnauthenticated       = errors.New("not authenticated")
	ErrConflict              = errors.New("conflict")
	ErrPartialCascade        = errors.New("partial cascade failure")
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
)

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// Conflict reports an entity that cannot make the requested transition.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// FromStore translates an entitystore error into the matching kind, keeping
// the original in the chain. Unknown errors are returned unchanged.
func FromStore(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entitystore.ErrNotFound):
		return NotFound(kind, id)
	case errors.Is(err, entitystore.ErrConflict):
		return fmt.Errorf("%w: %s %s: %w", ErrConflict, kind, id, err)
	case errors.Is(err, entitystore.ErrPermissionDenied):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	case errors.Is(err, entitystore.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrDownstreamUnavailable, err)
	}
	return err
}

// HTTPStatus maps an error onto a response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPartialCascade):
		return http.StatusMultiStatus
	case errors.Is(err, ErrDownstreamUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Code is the short machine-readable name of err's kind.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPartialCascade):
		return "partial_cascade"
	case errors.Is(err, ErrDownstreamUnavailable):
		return "downstream_unavailable"
	}
	return "internal"
}
