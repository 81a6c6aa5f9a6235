package pipeline

import (
	"errors"
	"fmt"
)

type ErrorType int

const (
	// ErrUpstream means the provider search or download failed and there is
	// no data to serve.
	ErrUpstream ErrorType = iota
	// ErrNotFound means no viable track survived selection.
	ErrNotFound
	// ErrTranslation marks degraded per-entry translation; never surfaced.
	ErrTranslation
	// ErrCache marks cache persistence failures.
	ErrCache
	// ErrConfig marks invalid request configuration.
	ErrConfig
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrUpstream:
		return "Upstream"
	case ErrNotFound:
		return "NotFound"
	case ErrTranslation:
		return "Translation"
	case ErrCache:
		return "Cache"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Error is the pipeline's typed error. Only Upstream and NotFound escape to
// callers as user-visible failures; everything else is absorbed with a
// fallback inside the pipeline.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message, Cause: err}
}

// IsErrorType reports whether err carries the given pipeline error type.
func IsErrorType(err error, errorType ErrorType) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type == errorType
	}
	return false
}
