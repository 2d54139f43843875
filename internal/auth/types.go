package auth

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// letters, digits, dots, hyphens, underscores, 2-32 characters.
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}._-]{2,32}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account locked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrSessionIdleTimeout = errors.New("session idle timeout")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already registered")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidUsername    = errors.New("invalid username")
)

// CredentialsError is returned for a failed password check on an identity
// that is not yet locked. It unwraps to ErrInvalidCredentials.
type CredentialsError struct {
	// Remaining is the number of further failures allowed before lockout.
	Remaining int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid username or password, %d attempts remaining", e.Remaining)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// LockedError is returned while an identity is inside its lockout window.
// It unwraps to ErrAccountLocked. The failure count is deliberately absent.
type LockedError struct {
	Remaining time.Duration
	Minutes   int
}

func newLockedError(remaining time.Duration) *LockedError {
	return &LockedError{Remaining: remaining, Minutes: ceilMinutes(remaining)}
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes or reset your password", e.Minutes)
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
