package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/nerrad567/familytree-core/internal/auth"
	"github.com/nerrad567/familytree-core/internal/family"
	"github.com/nerrad567/familytree-core/internal/infrastructure/reporting"
)

// Error represents a structured error response.
type Error struct {
	Status  int               `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeForbidden          = "forbidden"
	ErrCodeConflict           = "conflict"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeAccountLocked      = "account_locked"
	ErrCodeRateLimited        = "rate_limited"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeValidationError writes a 400 response listing per-field failures.
func writeValidationError(w http.ResponseWriter, err error) {
	resp := Error{
		Status:  http.StatusBadRequest,
		Code:    ErrCodeValidation,
		Message: "validation failed",
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		resp.Fields = make(map[string]string, len(verrs))
		for field, ferr := range verrs {
			resp.Fields[field] = ferr.Error()
		}
	} else {
		resp.Message = err.Error()
	}

	writeJSON(w, http.StatusBadRequest, resp)
}

// writeDomainError maps an error from the auth or family packages to its
// HTTP status and code. Anything unrecognised is logged, reported and
// answered with a generic 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) { //nolint:gocyclo // flat error table
	var (
		locked *auth.LockedError
		creds  *auth.CredentialsError
	)

	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(locked.Remaining.Seconds()))))
		writeError(w, http.StatusTooManyRequests, ErrCodeAccountLocked, locked.Error())

	case errors.As(err, &creds):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, creds.Error())

	case errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrSessionIdleTimeout):
		writeUnauthorized(w, "authentication required")

	case errors.Is(err, family.ErrForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())

	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, family.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())

	case errors.Is(err, family.ErrAlreadyMember),
		errors.Is(err, auth.ErrUsernameExists),
		errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())

	case errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, family.ErrInvalidName),
		errors.Is(err, family.ErrUnknownPermission):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())

	default:
		requestID, _ := r.Context().Value(ctxKeyRequestID).(string)
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"error", err,
		)
		reporting.Capture(err, map[string]string{
			"path":       r.URL.Path,
			"request_id": requestID,
		})
		writeInternalError(w, "internal server error")
	}
}
