package api

import (
	"net/http"
	"strings"

	"github.com/nerrad567/familytree-core/internal/audit"
	"github.com/nerrad567/familytree-core/internal/auth"
)

// handleRegister creates an account and starts a session for it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user, token, err := s.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.lifecycle.Establish(s.carrier(w, r), token)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    user,
	})
}

// handleLogin checks credentials against the throttle and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	res, err := s.auth.Login(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.lifecycle.Establish(s.carrier(w, r), res.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"redirectTo": res.RedirectTo,
	})
}

// handleResetPassword sets a new password and lifts any lockout.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}

	err := s.auth.ResetPassword(r.Context(), strings.TrimSpace(req.Username), req.NewPassword, req.ConfirmPassword)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleLogout ends the session. It succeeds with or without one.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	c := s.carrier(w, r)
	if c.Token() != "" {
		if userID, err := s.lifecycle.Authenticate(c); err == nil {
			s.audit.Record(r.Context(), audit.Event{
				Action:     audit.ActionLogout,
				EntityType: audit.EntityUser,
				EntityID:   userID,
				UserID:     userID,
			})
		}
	}
	s.lifecycle.End(c)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.CurrentUser(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
