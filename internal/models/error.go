package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountLocked   = errors.New("account is temporarily locked")
	ErrAccountInactive = errors.New("account is not activated")
	ErrUnknownAccount  = errors.New("unknown account")

	// Activation code outcomes
	ErrNoActiveCode         = errors.New("no activation code on record")
	ErrCodeExpired          = errors.New("activation code expired")
	ErrCodeAttemptsExceeded = errors.New("too many incorrect activation code attempts")
	ErrCodeIncorrect        = errors.New("activation code incorrect")
	ErrResendCooldown       = errors.New("activation code recently issued")
	ErrCodeContended        = errors.New("activation code changed during verification")

	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// CodeIncorrectError carries the attempts left before the code is exhausted.
// errors.Is(err, ErrCodeIncorrect) matches it.
type CodeIncorrectError struct {
	AttemptsRemaining int
}

func (e *CodeIncorrectError) Error() string {
	return fmt.Sprintf("activation code incorrect: %d attempts remaining", e.AttemptsRemaining)
}

func (e *CodeIncorrectError) Is(target error) bool {
	return target == ErrCodeIncorrect
}

// ResendCooldownError reports how long a caller must wait before a new code may be issued.
type ResendCooldownError struct {
	RetryAfter time.Duration
}

func (e *ResendCooldownError) Error() string {
	return fmt.Sprintf("activation code recently issued: retry after %s", e.RetryAfter)
}

func (e *ResendCooldownError) Is(target error) bool {
	return target == ErrResendCooldown
}
