package auth

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

// memCarrier is an in-memory Carrier.
type memCarrier struct {
	token    string
	activity string
	cleared  bool
}

func (c *memCarrier) Token() string { return c.token }
func (c *memCarrier) LastActivity() string { return c.activity }
func (c *memCarrier) SetToken(token string) { c.token = token }
func (c *memCarrier) SetLastActivity(v string) { c.activity = v }
func (c *memCarrier) Clear() { c.token, c.activity, c.cleared = "", "", true }

func newTestLifecycle(t *testing.T) (*Lifecycle, *TokenService, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	tokens := newTestTokens(t, clock)
	return NewLifecycle(tokens, WithLifecycleClock(clock.Now)), tokens, clock
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func TestLifecycle_Establish(t *testing.T) {
	l, tokens, clock := newTestLifecycle(t)
	token, _ := tokens.Issue("usr-001")

	c := &memCarrier{}
	l.Establish(c, token)

	if c.token != token {
		t.Error("token not stored in carrier")
	}
	if c.activity != millis(clock.Now()) {
		t.Errorf("activity = %q, want %q", c.activity, millis(clock.Now()))
	}
}

func TestLifecycle_WithinIdleWindowRefreshes(t *testing.T) {
	l, tokens, clock := newTestLifecycle(t)
	token, _ := tokens.Issue("usr-001")

	c := &memCarrier{}
	l.Establish(c, token)

	clock.Advance(29 * time.Minute)
	userID, err := l.Authenticate(c)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if userID != "usr-001" {
		t.Errorf("userID = %q, want usr-001", userID)
	}
	if c.activity != millis(clock.Now()) {
		t.Error("activity should slide forward to now")
	}

	// Sliding window: another 29 minutes is still fine.
	clock.Advance(29 * time.Minute)
	if _, err := l.Authenticate(c); err != nil {
		t.Errorf("second Authenticate() error = %v", err)
	}
}

func TestLifecycle_IdleTimeout(t *testing.T) {
	l, tokens, clock := newTestLifecycle(t)
	token, _ := tokens.Issue("usr-001")

	c := &memCarrier{}
	l.Establish(c, token)

	clock.Advance(31 * time.Minute)
	userID, err := l.Authenticate(c)
	if !errors.Is(err, ErrSessionIdleTimeout) {
		t.Fatalf("Authenticate() error = %v, want ErrSessionIdleTimeout", err)
	}
	if userID != "usr-001" {
		t.Errorf("userID = %q, want the idle token's user for attribution", userID)
	}
	if !c.cleared || c.token != "" || c.activity != "" {
		t.Error("carrier should be cleared after idle timeout")
	}
}

func TestLifecycle_ExactlyAtIdleTimeoutIsAllowed(t *testing.T) {
	l, tokens, clock := newTestLifecycle(t)
	token, _ := tokens.Issue("usr-001")

	c := &memCarrier{}
	l.Establish(c, token)

	clock.Advance(DefaultIdleTimeout)
	if _, err := l.Authenticate(c); err != nil {
		t.Errorf("Authenticate() at exactly the idle timeout error = %v", err)
	}
}

func TestLifecycle_MissingActivityTreatedAsActive(t *testing.T) {
	l, tokens, clock := newTestLifecycle(t)
	token, _ := tokens.Issue("usr-001")

	tests := []struct {
		name     string
		activity string
	}{
		{"absent", ""},
		{"unreadable", "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &memCarrier{token: token, activity: tt.activity}
			if _, err := l.Authenticate(c); err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if c.activity != millis(clock.Now()) {
				t.Errorf("activity = %q, want now", c.activity)
			}
		})
	}
}

func TestLifecycle_InvalidTokenClearsCarrier(t *testing.T) {
	l, _, clock := newTestLifecycle(t)

	c := &memCarrier{token: "forged", activity: millis(clock.Now())}
	_, err := l.Authenticate(c)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Authenticate() error = %v, want ErrTokenInvalid", err)
	}
	if !c.cleared {
		t.Error("carrier should be cleared for an invalid token")
	}
}

func TestLifecycle_ExpiredTokenWithFreshActivity(t *testing.T) {
	l, tokens, clock := newTestLifecycle(t)
	token, _ := tokens.Issue("usr-001")

	clock.Advance(DefaultTokenTTL + time.Minute)
	c := &memCarrier{token: token, activity: millis(clock.Now())}

	if _, err := l.Authenticate(c); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Authenticate() error = %v, want ErrTokenExpired", err)
	}
}

func TestLifecycle_End(t *testing.T) {
	l, tokens, _ := newTestLifecycle(t)
	token, _ := tokens.Issue("usr-001")

	c := &memCarrier{}
	l.Establish(c, token)
	l.End(c)

	if c.token != "" || c.activity != "" {
		t.Error("End() should clear both values")
	}
}

func TestLifecycle_WithIdleTimeout(t *testing.T) {
	clock := newFakeClock()
	tokens := newTestTokens(t, clock)
	l := NewLifecycle(tokens, WithLifecycleClock(clock.Now), WithIdleTimeout(5*time.Minute))

	if l.IdleTimeout() != 5*time.Minute {
		t.Errorf("IdleTimeout() = %v, want 5m", l.IdleTimeout())
	}

	token, _ := tokens.Issue("usr-001")
	c := &memCarrier{}
	l.Establish(c, token)

	clock.Advance(6 * time.Minute)
	if _, err := l.Authenticate(c); !errors.Is(err, ErrSessionIdleTimeout) {
		t.Errorf("Authenticate() error = %v, want ErrSessionIdleTimeout", err)
	}
}
