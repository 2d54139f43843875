package family

// Role names. The catalog is closed.
const (
	RoleCreator     = "creator"
	RoleParticipant = "participant"
	RoleObserver    = "observer"
)

// Permission keys. The namespace is closed: anything else resolves to false.
const (
	PermViewMembers    = "view_members"
	PermManageMembers  = "manage_members"
	PermEditFamilyInfo = "edit_family_info"
	PermDeleteFamily   = "delete_family"
	PermJoinFamily     = "join_family"
	PermLeaveFamily    = "leave_family"
	PermKickMember     = "kick_member"
	PermInviteMember   = "invite_member"
)

// PermissionDef describes one catalog key.
type PermissionDef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// catalog lists every permission key in display order.
var catalog = []PermissionDef{
	{PermViewMembers, "View family members"},
	{PermManageMembers, "Manage family members"},
	{PermEditFamilyInfo, "Edit family info"},
	{PermDeleteFamily, "Delete family"},
	{PermJoinFamily, "Join family"},
	{PermLeaveFamily, "Leave family"},
	{PermKickMember, "Remove members"},
	{PermInviteMember, "Invite members"},
}

// roleGrants lists the keys each role holds by default. This is the single
// source of truth for role defaults.
var roleGrants = map[string][]string{
	RoleObserver: {
		PermViewMembers,
		PermJoinFamily,
		PermLeaveFamily,
		PermInviteMember,
	},
	RoleParticipant: {
		PermViewMembers,
		PermManageMembers,
		PermEditFamilyInfo,
		PermJoinFamily,
		PermLeaveFamily,
		PermInviteMember,
	},
	RoleCreator: {
		PermViewMembers,
		PermManageMembers,
		PermEditFamilyInfo,
		PermDeleteFamily,
		PermJoinFamily,
		PermLeaveFamily,
		PermKickMember,
		PermInviteMember,
	},
}

// roleDescriptions are stored with the role on first use.
var roleDescriptions = map[string]string{
	RoleCreator:     "Creator - full permissions, including managing members, editing family info and deleting the family",
	RoleParticipant: "Participant - can manage family members and edit family info",
	RoleObserver:    "Observer - can view the family only",
}

// Catalog returns a copy of the permission catalog.
func Catalog() []PermissionDef {
	out := make([]PermissionDef, len(catalog))
	copy(out, catalog)
	return out
}

// RoleNames returns the role catalog.
func RoleNames() []string {
	return []string{RoleCreator, RoleParticipant, RoleObserver}
}

// IsValidRole reports whether name is in the role catalog.
func IsValidRole(name string) bool {
	_, ok := roleGrants[name]
	return ok
}

// IsKnownPermission reports whether key is in the permission catalog.
func IsKnownPermission(key string) bool {
	for _, def := range catalog {
		if def.Key == key {
			return true
		}
	}
	return false
}

// RoleDescription returns the fixed description for a role.
func RoleDescription(role string) string {
	return roleDescriptions[role]
}

// RoleDefault returns the default value of key for role. Unknown roles and
// keys give false.
func RoleDefault(role, key string) bool {
	for _, k := range roleGrants[role] {
		if k == key {
			return true
		}
	}
	return false
}

// SeedDefaults materializes the full catalog for role as permission rows.
// Owner ids are left for the caller to set. Unknown roles seed as observer.
func SeedDefaults(role string) []Permission {
	if !IsValidRole(role) {
		role = RoleObserver
	}
	perms := make([]Permission, 0, len(catalog))
	for _, def := range catalog {
		perms = append(perms, Permission{
			Key:   def.Key,
			Name:  def.Name,
			Value: RoleDefault(role, def.Key),
		})
	}
	return perms
}

// EffectivePermission resolves key for a membership. overrides holds the
// membership's stored rows by key.
func EffectivePermission(m *Membership, overrides map[string]bool, key string) bool {
	if !IsKnownPermission(key) {
		return false
	}
	if m.IsCreator {
		return true
	}
	if v, ok := overrides[key]; ok {
		return v
	}
	return RoleDefault(m.RoleName, key)
}

// EffectivePermissions resolves every catalog key for a membership.
func EffectivePermissions(m *Membership, overrides map[string]bool) map[string]bool {
	out := make(map[string]bool, len(catalog))
	for _, def := range catalog {
		out[def.Key] = EffectivePermission(m, overrides, def.Key)
	}
	return out
}
