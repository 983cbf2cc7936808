// Package apperr defines the error kinds shared across the gateway core.
// Callers classify failures with errors.Is against the sentinels below.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration marks missing credentials, endpoints or inconsistent pool setup.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks unknown networks, chain ids, currencies, blocks or prices.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks caller-supplied input that cannot be served.
	ErrValidation = errors.New("invalid request")
	// ErrTransientRPC marks a node read that may succeed against a different block tag.
	ErrTransientRPC = errors.New("transient rpc failure")
	// ErrCacheWrite marks a failed best-effort cache write-back.
	ErrCacheWrite = errors.New("cache write failed")
)

// Configf returns an ErrConfiguration carrying the formatted detail.
func Configf(format string, args ...any) error {
	return wrap(ErrConfiguration, format, args...)
}

// NotFoundf returns an ErrNotFound carrying the formatted detail.
func NotFoundf(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

// Validationf returns an ErrValidation carrying the formatted detail.
func Validationf(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

// TransientRPCf returns an ErrTransientRPC carrying the formatted detail.
func TransientRPCf(format string, args ...any) error {
	return wrap(ErrTransientRPC, format, args...)
}

// CacheWritef returns an ErrCacheWrite carrying the formatted detail.
func CacheWritef(format string, args ...any) error {
	return wrap(ErrCacheWrite, format, args...)
}

// wrap prefixes the message with kind so errors.Is matches it.
func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// StatusCode maps an error to the HTTP status a request boundary should report.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
