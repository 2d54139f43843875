package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			// Credential endpoints are rate limited per client IP.
			r.Group(func(r chi.Router) {
				r.Use(s.rateLimitMiddleware)
				r.Post("/register", s.handleRegister)
				r.Post("/login", s.handleLogin)
				r.Post("/reset-password", s.handleResetPassword)
			})
			r.Post("/logout", s.handleLogout)
			r.With(s.sessionMiddleware).Get("/me", s.handleMe)
		})

		r.Route("/families", func(r chi.Router) {
			r.Post("/check", s.handleCheckShareCode)

			r.Group(func(r chi.Router) {
				r.Use(s.sessionMiddleware)
				r.Get("/", s.handleListFamilies)
				r.Post("/", s.handleCreateFamily)
				r.Post("/join", s.handleJoinFamily)
			})

			r.Route("/{familyID}", func(r chi.Router) {
				r.With(s.optionalSessionMiddleware).Get("/user-role", s.handleUserRole)

				// Protected routes
				r.Group(func(r chi.Router) {
					r.Use(s.sessionMiddleware)
					r.Put("/", s.handleUpdateFamily)
					r.Delete("/", s.handleDeleteFamily)
					r.Post("/leave", s.handleLeaveFamily)
					r.Get("/members", s.handleListMembers)
					r.Post("/members/{userID}/promote", s.handlePromote)
					r.Put("/members/{userID}/permissions/{key}", s.handleSetPermission)
					r.Get("/permissions", s.handlePermissions)
					r.Get("/activity", s.handleActivity)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
