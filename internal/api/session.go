package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/familytree-core/internal/audit"
	"github.com/nerrad567/familytree-core/internal/auth"
)

// Session cookie names.
const (
	cookieToken    = "auth-token"
	cookieActivity = "last-activity"
)

// cookieCarrier carries the session token and activity marker in cookies.
// Reads come from the request; writes go out as Set-Cookie headers.
type cookieCarrier struct {
	w        http.ResponseWriter
	token    string
	activity string
	secure   bool
	maxAge   time.Duration
}

func (s *Server) carrier(w http.ResponseWriter, r *http.Request) *cookieCarrier {
	c := &cookieCarrier{w: w, secure: s.cfg.SecureCookies, maxAge: s.tokenTTL}
	if ck, err := r.Cookie(cookieToken); err == nil {
		c.token = ck.Value
	}
	if ck, err := r.Cookie(cookieActivity); err == nil {
		c.activity = ck.Value
	}
	return c
}

func (c *cookieCarrier) Token() string        { return c.token }
func (c *cookieCarrier) LastActivity() string { return c.activity }

func (c *cookieCarrier) SetToken(token string) {
	c.token = token
	c.set(cookieToken, token, int(c.maxAge.Seconds()))
}

func (c *cookieCarrier) SetLastActivity(value string) {
	c.activity = value
	c.set(cookieActivity, value, int(c.maxAge.Seconds()))
}

func (c *cookieCarrier) Clear() {
	c.token, c.activity = "", ""
	c.set(cookieToken, "", -1)
	c.set(cookieActivity, "", -1)
}

func (c *cookieCarrier) set(name, value string, maxAge int) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// authenticate runs the session policy against the request cookies and
// checks that the user still exists.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, error) {
	c := s.carrier(w, r)

	userID, err := s.lifecycle.Authenticate(c)
	if err != nil {
		if errors.Is(err, auth.ErrSessionIdleTimeout) {
			s.audit.Record(r.Context(), audit.Event{
				Action:     audit.ActionSessionIdleTimeout,
				EntityType: audit.EntityUser,
				EntityID:   userID,
				UserID:     userID,
				Outcome:    audit.OutcomeFailure,
			})
		}
		return "", err
	}

	if _, err := s.auth.CurrentUser(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.Clear()
			return "", auth.ErrTokenInvalid
		}
		return "", err
	}
	return userID, nil
}

// sessionMiddleware admits only requests carrying a live session.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(w, r)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalSessionMiddleware attaches the user when a live session is
// present and lets anonymous requests through.
func (s *Server) optionalSessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(cookieToken); err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if userID, err := s.authenticate(w, r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), ctxKeyUserID, userID))
		}
		next.ServeHTTP(w, r)
	})
}

// userIDFromContext returns the authenticated user, or "" for anonymous
// requests.
func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}
