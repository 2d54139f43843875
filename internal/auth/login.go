package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/familytree-core/internal/audit"
)

// Redirect targets returned after a successful login.
const (
	RedirectFamily  = "/family"
	RedirectOnboard = "/onboard"
)

// dummyPassword is hashed once and verified against when the username is
// unknown, so a miss costs the same as a wrong password.
const dummyPassword = "familytree-dummy-password"

// TokenIssuer signs session tokens for a user.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// FamilyCounter reports how many families a user created or belongs to.
type FamilyCounter interface {
	CountFamilies(ctx context.Context, userID string) (int, error)
}

// Logger is the logging surface the Authenticator needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AuthenticatorDeps holds the collaborators for NewAuthenticator.
// Families and Audit are optional.
type AuthenticatorDeps struct {
	Users    UserRepository
	Hasher   PasswordHasher
	Throttle *Throttle
	Tokens   TokenIssuer
	Families FamilyCounter
	Audit    audit.Recorder
	Logger   Logger
}

// Authenticator runs the credential flows: login, registration and
// password reset.
type Authenticator struct {
	users    UserRepository
	hasher   PasswordHasher
	throttle *Throttle
	tokens   TokenIssuer
	families FamilyCounter
	audit    audit.Recorder
	logger   Logger

	dummyOnce sync.Once
	dummyHash string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	UserID     string
	Token      string
	RedirectTo string
}

// RegisterInput holds the fields accepted at registration.
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// NewAuthenticator validates deps and builds an Authenticator.
func NewAuthenticator(deps AuthenticatorDeps) (*Authenticator, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("authenticator: user repository is required")
	case deps.Hasher == nil:
		return nil, errors.New("authenticator: password hasher is required")
	case deps.Throttle == nil:
		return nil, errors.New("authenticator: throttle is required")
	case deps.Tokens == nil:
		return nil, errors.New("authenticator: token issuer is required")
	case deps.Logger == nil:
		return nil, errors.New("authenticator: logger is required")
	}

	rec := deps.Audit
	if rec == nil {
		rec = audit.Discard
	}

	return &Authenticator{
		users:    deps.Users,
		hasher:   deps.Hasher,
		throttle: deps.Throttle,
		tokens:   deps.Tokens,
		families: deps.Families,
		audit:    rec,
		logger:   deps.Logger,
	}, nil
}

// Login verifies credentials behind the throttle and issues a session token.
//
// Errors:
//   - *LockedError (ErrAccountLocked): the identity is locked, either before
//     this attempt or by it
//   - *CredentialsError (ErrInvalidCredentials): wrong password or unknown
//     user, with the attempts left before lockout
//   - anything else: store, hasher or signing failure
func (a *Authenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if remaining, locked := a.throttle.CheckLocked(username); locked {
		return nil, newLockedError(remaining)
	}

	user, err := a.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	var ok bool
	if user == nil {
		a.verifyDummy(password)
	} else {
		ok, err = a.hasher.Verify(password, user.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("verifying password: %w", err)
		}
	}

	if !ok {
		return nil, a.loginFailed(ctx, username, user)
	}

	a.throttle.RecordSuccess(username)

	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	redirect := RedirectOnboard
	if a.families != nil {
		n, err := a.families.CountFamilies(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("counting families: %w", err)
		}
		if n > 0 {
			redirect = RedirectFamily
		}
	}

	a.audit.Record(ctx, audit.Event{
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     user.ID,
	})
	a.logger.Info("user logged in", "user_id", user.ID)

	return &LoginResult{UserID: user.ID, Token: token, RedirectTo: redirect}, nil
}

// loginFailed records a failed attempt and builds the caller-facing error.
func (a *Authenticator) loginFailed(ctx context.Context, username string, user *User) error {
	failures, lock := a.throttle.RecordFailure(username)

	var userID string
	if user != nil {
		userID = user.ID
	}

	if lock > 0 {
		lerr := newLockedError(lock)
		a.audit.Record(ctx, audit.Event{
			Action:     audit.ActionLockout,
			EntityType: audit.EntityUser,
			EntityID:   userID,
			UserID:     userID,
			Outcome:    audit.OutcomeFailure,
			Details:    map[string]any{"username": username, "failures": failures, "minutes": lerr.Minutes},
		})
		a.logger.Warn("login identity locked",
			"username", username,
			"attempts", failures,
			"locked_minutes", lerr.Minutes,
		)
		return lerr
	}

	remaining := a.throttle.MaxAttempts() - failures
	if remaining < 0 {
		remaining = 0
	}
	a.audit.Record(ctx, audit.Event{
		Action:     audit.ActionLoginFailed,
		EntityType: audit.EntityUser,
		EntityID:   userID,
		UserID:     userID,
		Outcome:    audit.OutcomeFailure,
		Details:    map[string]any{"username": username, "failures": failures, "remaining": remaining},
	})
	a.logger.Info("login failed", "username", username, "attempts", failures)

	return &CredentialsError{Remaining: remaining}
}

func (a *Authenticator) verifyDummy(password string) {
	a.dummyOnce.Do(func() {
		h, err := a.hasher.Hash(dummyPassword)
		if err != nil {
			a.logger.Error("hashing dummy password", "error", err)
			return
		}
		a.dummyHash = h
	})
	if a.dummyHash != "" {
		_, _ = a.hasher.Verify(password, a.dummyHash) //nolint:errcheck // result is discarded
	}
}

// Register creates an account and issues its first session token.
func (a *Authenticator) Register(ctx context.Context, in RegisterInput) (*User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if !IsValidUsername(in.Username) {
		return nil, "", ErrInvalidUsername
	}

	if _, err := a.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, "", ErrUsernameExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, "", fmt.Errorf("checking username: %w", err)
	}

	if in.Email != "" {
		if _, err := a.users.GetByEmail(ctx, in.Email); err == nil {
			return nil, "", ErrEmailExists
		} else if !errors.Is(err, ErrUserNotFound) {
			return nil, "", fmt.Errorf("checking email: %w", err)
		}
	}

	hash, err := a.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	user := &User{Username: in.Username, Email: in.Email, PasswordHash: hash}
	if err := a.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issuing token: %w", err)
	}

	a.audit.Record(ctx, audit.Event{
		Action:     audit.ActionRegister,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     user.ID,
	})
	a.logger.Info("user registered", "user_id", user.ID, "username", user.Username)

	return user, token, nil
}

// ResetPassword replaces a user's password and clears their throttle record.
// It does not prove ownership of the account; see the package documentation.
func (a *Authenticator) ResetPassword(ctx context.Context, username, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}

	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := a.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	a.throttle.Forget(username)

	a.audit.Record(ctx, audit.Event{
		Action:     audit.ActionPasswordReset,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     user.ID,
	})
	a.logger.Info("password reset", "user_id", user.ID)

	return nil
}

// CurrentUser returns the profile of an authenticated user.
func (a *Authenticator) CurrentUser(ctx context.Context, userID string) (*User, error) {
	return a.users.GetByID(ctx, userID)
}
