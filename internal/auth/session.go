package auth

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultIdleTimeout is the longest allowed gap between authenticated requests.
const DefaultIdleTimeout = 30 * time.Minute

// Carrier transports the two pieces of per-session state between requests:
// the signed token and the last-activity marker. The HTTP layer backs it with
// cookies; Lifecycle never looks at how the values travel.
type Carrier interface {
	Token() string
	LastActivity() string
	SetToken(token string)
	SetLastActivity(value string)
	// Clear removes both values from the client.
	Clear()
}

// TokenVerifier checks a session token and returns its user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Lifecycle layers the idle-timeout policy on top of token validity.
// The activity marker is advisory and not bound to the token; it only
// decides whether a token-valid request still counts as a live session.
type Lifecycle struct {
	tokens TokenVerifier
	idle   time.Duration
	now    func() time.Time
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) LifecycleOption {
	return func(l *Lifecycle) {
		if d > 0 {
			l.idle = d
		}
	}
}

// WithLifecycleClock replaces the wall clock, for tests.
func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

// NewLifecycle creates a Lifecycle verifying tokens with tokens.
func NewLifecycle(tokens TokenVerifier, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		tokens: tokens,
		idle:   DefaultIdleTimeout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Establish stores a freshly issued token and starts the activity window.
func (l *Lifecycle) Establish(c Carrier, token string) {
	c.SetToken(token)
	c.SetLastActivity(formatActivity(l.now()))
}

// Authenticate verifies the carried token, then applies the idle policy.
// On any failure both carried values are cleared and the returned error
// wraps ErrTokenInvalid, ErrTokenExpired or ErrSessionIdleTimeout. For an
// idle timeout the user id of the (valid) token is still returned so the
// caller can attribute the event; it must not be treated as authenticated.
func (l *Lifecycle) Authenticate(c Carrier) (string, error) {
	userID, err := l.tokens.Verify(c.Token())
	if err != nil {
		c.Clear()
		return "", err
	}

	if err := l.Touch(c); err != nil {
		return userID, err
	}
	return userID, nil
}

// Touch applies the idle policy alone. A missing or unreadable marker counts
// as first activity. A gap longer than the idle timeout ends the session;
// otherwise the marker slides forward to now.
func (l *Lifecycle) Touch(c Carrier) error {
	now := l.now()

	if last, ok := parseActivity(c.LastActivity()); ok {
		if gap := now.Sub(last); gap > l.idle {
			c.Clear()
			return fmt.Errorf("%w: idle for %s", ErrSessionIdleTimeout, gap.Truncate(time.Second))
		}
	}

	c.SetLastActivity(formatActivity(now))
	return nil
}

// End clears the session from the carrier.
func (l *Lifecycle) End(c Carrier) {
	c.Clear()
}

// IdleTimeout returns the configured idle window.
func (l *Lifecycle) IdleTimeout() time.Duration {
	return l.idle
}

// formatActivity encodes t as Unix milliseconds.
func formatActivity(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseActivity(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
