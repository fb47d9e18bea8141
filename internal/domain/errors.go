package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAuth          = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrTransient     = errors.New("transient failure")
	ErrValidation    = errors.New("request rejected")
	ErrNormalization = errors.New("normalization failed")
	ErrCursorStalled = errors.New("pagination cursor did not advance")
	ErrLockHeld      = errors.New("lock already held")
	ErrMissingCreds  = errors.New("missing credentials")
)

// APIErrorKind classifies a failed marketplace call for the retry policy.
type APIErrorKind int

const (
	KindTransient APIErrorKind = iota
	KindRateLimit
	KindAuth
	KindValidation
)

func (k APIErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	default:
		return "transient"
	}
}

// APIError is returned by the marketplace HTTP clients. It matches the
// sentinel for its kind under errors.Is, so callers can test
// errors.Is(err, ErrAuth) without unwrapping.
type APIError struct {
	Kind     APIErrorKind
	Source   SourceCode
	Endpoint string
	Status   int
	Body     string
	// RetryAfter is the server-provided wait on 429 responses, zero if absent.
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Source, e.Endpoint, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Body != "" {
		msg += ": " + truncate(e.Body, 256)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrRateLimited:
		return e.Kind == KindRateLimit
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// IsFatal reports whether err must abort the current source's run
// immediately rather than being absorbed into the summary.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrCursorStalled) || errors.Is(err, ErrMissingCreds)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
