package elevation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is returned when the provider signals its quota is exhausted
	ErrRateLimited = errors.New("elevation provider rate limit exceeded")
	// ErrNetwork covers transport failures and transient upstream errors
	ErrNetwork = errors.New("elevation provider unreachable")
	// ErrBadResponse is a non-retryable upstream response
	ErrBadResponse = errors.New("unexpected elevation provider response")
	// ErrCancelled is returned when the caller's context ends mid-fetch
	ErrCancelled = errors.New("elevation fetch cancelled")
	// ErrInvalidCoordinate is returned for out-of-range single point lookups
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	// ErrNoElevation is returned when a single point lookup yields no value
	ErrNoElevation = errors.New("no elevation available")
	// ErrSessionClosed is returned when a released client is used
	ErrSessionClosed = errors.New("elevation session closed")
)

// RateLimitError carries the provider's Retry-After hint when it sent one
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

// Is makes RateLimitError match ErrRateLimited
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
