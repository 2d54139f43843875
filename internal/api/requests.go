package api

import (
	"encoding/json"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Field limits shared by the request bodies.
const (
	minPasswordLen = 6
	maxPasswordLen = 128
	maxNameLen     = 100
	maxTextLen     = 1000
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(2, 32)),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLen, maxPasswordLen)),
		validation.Field(&r.Email, is.Email),
	)
}

type resetPasswordRequest struct {
	Username        string `json:"username"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(minPasswordLen, maxPasswordLen)),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

// familyRequest is the body for creating and updating a family.
type familyRequest struct {
	Name        string `json:"name"`
	Motto       string `json:"motto"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

func (r familyRequest) validate(requireName bool) error {
	var nameRules []validation.Rule
	if requireName {
		nameRules = append(nameRules, validation.Required)
	}
	nameRules = append(nameRules, validation.Length(1, maxNameLen))
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, nameRules...),
		validation.Field(&r.Motto, validation.Length(0, maxNameLen)),
		validation.Field(&r.Location, validation.Length(0, maxNameLen)),
		validation.Field(&r.Description, validation.Length(0, maxTextLen)),
	)
}

// shareCodeRequest is the body for joining and checking a share code.
type shareCodeRequest struct {
	ShareCode string `json:"shareCode"`
}

func (r shareCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ShareCode, validation.Required),
	)
}

type setPermissionRequest struct {
	Value *bool `json:"value"`
}

func (r setPermissionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Value, validation.NotNil),
	)
}

// decodeJSON reads a JSON body into v, answering 400 on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// decodeValid decodes and validates a request body.
func decodeValid(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	if !decodeJSON(w, r, v) {
		return false
	}
	if err := v.Validate(); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}
