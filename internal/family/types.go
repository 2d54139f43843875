package family

import (
	"errors"
	"fmt"
	"time"
)

// Family is a group of users building one tree.
type Family struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Motto       string    `json:"motto,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatorID   string    `json:"creatorId"`
	ShareCode   string    `json:"shareCode"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summary is the public view of a family returned for a share-code check.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Motto       string    `json:"motto,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatorID   string    `json:"creatorId"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
}

// Role is a catalog entry. Roles are global, not per-family.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Membership binds one user to one family with one role.
type Membership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	FamilyID  string    `json:"familyId"`
	RoleID    string    `json:"roleId"`
	RoleName  string    `json:"role"`
	IsCreator bool      `json:"isCreator"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Member is a membership joined with the user and role details, as listed
// to other members.
type Member struct {
	Membership
	Username        string `json:"username"`
	RoleDescription string `json:"roleDescription"`
}

// Permission is one stored flag, owned by either a role or a membership.
type Permission struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	Value        bool   `json:"value"`
	RoleID       string `json:"roleId,omitempty"`
	MembershipID string `json:"membershipId,omitempty"`
}

// RoleStatus answers "what is this user in this family".
type RoleStatus struct {
	IsCreator bool `json:"isCreator"`
	IsMember  bool `json:"isMember"`
}

// Update holds the editable family fields. An empty Name keeps the old one.
type Update struct {
	Name        string
	Motto       string
	Location    string
	Description string
}

// Sentinel errors for family operations.
var (
	ErrNotFound           = errors.New("not found")
	ErrFamilyNotFound     = fmt.Errorf("family %w", ErrNotFound)
	ErrMemberNotFound     = fmt.Errorf("membership %w", ErrNotFound)
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyMember      = errors.New("already a member of this family")
	ErrInvalidName        = errors.New("family name is required")
	ErrUnknownPermission  = errors.New("unknown permission key")
	ErrShareCodeExhausted = errors.New("could not allocate a unique share code")

	// ErrCreatorCannotLeave is returned when the creator tries to leave
	// their own family. It unwraps to ErrForbidden.
	ErrCreatorCannotLeave = fmt.Errorf("creator cannot leave the family: %w", ErrForbidden)
)
