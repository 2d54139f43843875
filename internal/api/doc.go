// Package api provides the HTTP REST API for the family-tree core.
//
// It exposes registration, login, logout and password reset, plus the
// family endpoints (create, join, members, promote, permissions, leave,
// activity) behind a cookie-carried session.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Sessions travel in two cookies: auth-token (the signed token) and
// last-activity (Unix milliseconds). The session middleware verifies the
// token, applies the idle timeout and checks the user still exists before
// any protected handler runs.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
