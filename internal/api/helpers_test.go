package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/familytree-core/internal/audit"
	"github.com/nerrad567/familytree-core/internal/auth"
	"github.com/nerrad567/familytree-core/internal/family"
	"github.com/nerrad567/familytree-core/internal/infrastructure/config"
	"github.com/nerrad567/familytree-core/internal/infrastructure/database"
	"github.com/nerrad567/familytree-core/internal/infrastructure/logging"
	"github.com/nerrad567/familytree-core/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// testClock is a settable clock shared by the throttle and the session lifecycle.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	clock    *testClock
	auditLog *audit.SQLiteRepository
}

// newTestEnv wires the full stack over a temporary SQLite database.
func newTestEnv(t *testing.T, rl config.RateLimitConfig) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	log := logging.Discard()
	clock := &testClock{now: time.Now().UTC()}

	familyRepo := family.NewSQLiteRepository(db.DB)
	require.NoError(t, family.SeedRoles(ctx, familyRepo, log))

	auditLog := audit.NewSQLiteRepository(db.DB)
	rec := audit.NewFanout(log, auditLog)

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	authn, err := auth.NewAuthenticator(auth.AuthenticatorDeps{
		Users:    auth.NewUserRepository(db.DB),
		Hasher:   &auth.Hasher{Time: 1, Memory: 64, Threads: 1},
		Throttle: auth.NewThrottle(auth.WithThrottleClock(clock.Now)),
		Tokens:   tokens,
		Families: familyRepo,
		Audit:    rec,
		Logger:   log,
	})
	require.NoError(t, err)

	srv, err := New(Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 0},
		RateLimit: rl,
		Logger:    log,
		DB:        db,
		Auth:      authn,
		Lifecycle: auth.NewLifecycle(tokens, auth.WithLifecycleClock(clock.Now)),
		TokenTTL:  tokens.TTL(),
		Families:  family.NewService(familyRepo, rec, log),
		AuditLog:  auditLog,
		Audit:     rec,
		Version:   "test",
	})
	require.NoError(t, err)

	return &testEnv{srv: srv, handler: srv.buildRouter(), clock: clock, auditLog: auditLog}
}

// client replays the cookies the server sets, like a browser would.
type client struct {
	t       *testing.T
	env     *testEnv
	cookies map[string]*http.Cookie
}

func (e *testEnv) client(t *testing.T) *client {
	return &client{t: t, env: e, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	c.env.handler.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

// register creates an account and leaves the client logged in as it.
func (c *client) register(username string) string {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": username,
		"password": "secret-" + username,
	})
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		User auth.User `json:"user"`
	}
	decode(c.t, rec, &resp)
	return resp.User.ID
}

func (c *client) login(username, password string) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	decode(t, rec, &e)
	return e
}
