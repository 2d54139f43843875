package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/familytree-core/internal/audit"
	"github.com/nerrad567/familytree-core/internal/family"
)

func (req familyRequest) update() family.Update {
	return family.Update{
		Name:        req.Name,
		Motto:       req.Motto,
		Location:    req.Location,
		Description: req.Description,
	}
}

// handleCheckShareCode previews the family behind a share code. Unknown
// codes answer with a null family, not an error.
func (s *Server) handleCheckShareCode(w http.ResponseWriter, r *http.Request) {
	var req shareCodeRequest
	if !decodeValid(w, r, &req) {
		return
	}

	summary, err := s.families.CheckShareCode(r.Context(), req.ShareCode)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"family": summary})
}

func (s *Server) handleListFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := s.families.ListFamilies(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if families == nil {
		families = []family.Family{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"families": families})
}

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var req familyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(true); err != nil {
		writeValidationError(w, err)
		return
	}

	f, err := s.families.CreateFamily(r.Context(), userIDFromContext(r.Context()), req.update())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "family": f})
}

func (s *Server) handleJoinFamily(w http.ResponseWriter, r *http.Request) {
	var req shareCodeRequest
	if !decodeValid(w, r, &req) {
		return
	}

	f, _, err := s.families.JoinFamily(r.Context(), userIDFromContext(r.Context()), req.ShareCode)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "family": f})
}

func (s *Server) handleUpdateFamily(w http.ResponseWriter, r *http.Request) {
	var req familyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(false); err != nil {
		writeValidationError(w, err)
		return
	}

	f, err := s.families.UpdateFamily(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "familyID"), req.update())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "family": f})
}

func (s *Server) handleDeleteFamily(w http.ResponseWriter, r *http.Request) {
	if err := s.families.DeleteFamily(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "familyID")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLeaveFamily(w http.ResponseWriter, r *http.Request) {
	if err := s.families.Leave(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "familyID")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.families.ListMembers(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "familyID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if members == nil {
		members = []family.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// handlePromote raises a member to participant. Creator only.
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	m, err := s.families.Promote(r.Context(),
		userIDFromContext(r.Context()),
		chi.URLParam(r, "familyID"),
		chi.URLParam(r, "userID"),
	)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "membership": m})
}

func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	var req setPermissionRequest
	if !decodeValid(w, r, &req) {
		return
	}

	err := s.families.SetPermission(r.Context(),
		userIDFromContext(r.Context()),
		chi.URLParam(r, "familyID"),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "key"),
		*req.Value,
	)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleUserRole reports the caller's relation to a family. Anonymous
// callers and unknown families get all-false.
func (s *Server) handleUserRole(w http.ResponseWriter, r *http.Request) {
	status, err := s.families.UserRole(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "familyID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.families.Permissions(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "familyID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": perms,
		"catalog":     family.Catalog(),
	})
}

// handleActivity returns the family's audit trail. Creator only.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "activity log not available")
		return
	}

	familyID := chi.URLParam(r, "familyID")
	status, err := s.families.UserRole(r.Context(), userIDFromContext(r.Context()), familyID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !status.IsCreator {
		s.writeDomainError(w, r, family.ErrForbidden)
		return
	}

	filter := audit.Filter{
		FamilyID: familyID,
		Action:   r.URL.Query().Get("action"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditLog.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
