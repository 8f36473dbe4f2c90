package attendance

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrUnauthorized       = errors.New("not authenticated")
	ErrForbidden          = errors.New("access denied")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("user not found")
	ErrMissingNIM         = errors.New("student number not linked to account")
	ErrInactiveStudent    = errors.New("student is not active")
	ErrSessionNotFound    = errors.New("attendance session not found")
	ErrSessionNotActive   = errors.New("attendance session has not started or has ended")
	ErrInvalidNonce       = errors.New("check-in token is invalid or expired")
	ErrAlreadyCheckedIn   = errors.New("already checked in for this session")
	ErrEmptyIdentifiers   = errors.New("identifier list is empty")
	ErrTooManyIdentifiers = errors.New("too many identifiers")
	ErrNoMatchingUsers    = errors.New("no users match the given identifiers")
)

// OutOfRangeError reports a check-in outside the session geofence.
type OutOfRangeError struct {
	Distance float64
	Radius   float64
}

// Meters is the distance rounded for display.
func (e *OutOfRangeError) Meters() int {
	return int(math.Round(e.Distance))
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("outside check-in area (%dm)", e.Meters())
}

// RateLimitedError reports a rejected action and when to retry.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many requests for %s, retry in %s", e.Action, e.RetryAfter.Round(time.Second))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
