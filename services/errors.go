package services

import (
	"errors"
	"fmt"
	"time"
)

// Precondition violations: rejected before any state is touched.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUnknownReason      = errors.New("unknown point reason")
	ErrTaskNotFound       = errors.New("task not found")
	ErrMalformedAnswers   = errors.New("answer batch does not match the daily question set")
	ErrMalformedHeartbeat = errors.New("heartbeat minutes out of range")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidCode        = errors.New("invalid or expired code")
)

// State conflicts: rejected with a specific reason, no state mutated.
var (
	ErrAlreadySubmitted    = errors.New("task already submitted")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrAlreadyReviewed     = errors.New("submission already reviewed")
	ErrQuizAlreadyTaken    = errors.New("daily quiz already taken")
	ErrWrongAnswerNotFound = errors.New("wrong answer not found")
	ErrQuotaExceeded       = errors.New("monthly token quota exceeded")
	ErrInvalidToken        = errors.New("account or token mismatch")
	ErrInvalidCredentials  = errors.New("account or password mismatch")
	ErrAlreadyRegistered   = errors.New("account already registered")
	ErrCodeCooldown        = errors.New("code requested too frequently")
	ErrWeekStillOpen       = errors.New("week not closed yet")
)

// errTokenCollision triggers a fresh mint inside Issue.
var errTokenCollision = errors.New("exclusive token collision")

// TokenDisabledError is returned by the login and registration gates for a disabled token.
// It is distinct from credential failures so callers can surface the remediation path.
type TokenDisabledError struct {
	DisabledAt time.Time
	Reason     string
}

func (e *TokenDisabledError) Error() string {
	return fmt.Sprintf("exclusive token disabled at %s: %s", e.DisabledAt.Format(time.RFC3339), e.Reason)
}
