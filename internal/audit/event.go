package audit

import (
	"context"
	"time"
)

// Actions recorded by the core.
const (
	ActionLogin              = "login"
	ActionLoginFailed        = "login_failed"
	ActionLockout            = "lockout"
	ActionLogout             = "logout"
	ActionRegister           = "register"
	ActionPasswordReset      = "password_reset"
	ActionSessionIdleTimeout = "session_idle_timeout"

	ActionFamilyCreate  = "family_create"
	ActionFamilyJoin    = "family_join"
	ActionFamilyLeave   = "family_leave"
	ActionFamilyUpdate  = "family_update"
	ActionFamilyDelete  = "family_delete"
	ActionMemberPromote = "member_promote"
	ActionPermissionSet = "permission_set"
)

// Entity types.
const (
	EntityUser       = "user"
	EntityFamily     = "family"
	EntityMembership = "membership"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SourceAPI marks events raised while handling an HTTP request.
const SourceAPI = "api"

// Event is one security-relevant occurrence.
type Event struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	FamilyID   string
	Source     string
	Outcome    string
	Details    map[string]any
	CreatedAt  time.Time
}

// Category groups an action for routing: "auth" or "family".
func (e Event) Category() string {
	switch e.Action {
	case ActionLogin, ActionLoginFailed, ActionLockout, ActionLogout,
		ActionRegister, ActionPasswordReset, ActionSessionIdleTimeout:
		return "auth"
	default:
		return "family"
	}
}

// Recorder accepts events. Recording never fails from the caller's view.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) {}
