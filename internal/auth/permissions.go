package auth

// Permission is a named capability.
type Permission string

// Permission constants.
const (
	PermStateRead      Permission = "state:read"
	PermHistoryRead    Permission = "history:read"
	PermEventsStream   Permission = "events:stream"
	PermCommandList    Permission = "command:list"
	PermCommandExecute Permission = "command:execute"
)

// rolePermissions is the single source of truth for authorisation.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermStateRead,
		PermHistoryRead,
		PermEventsStream,
		PermCommandList,
	},
	RoleOperator: {
		PermStateRead,
		PermHistoryRead,
		PermEventsStream,
		PermCommandList,
		PermCommandExecute,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions of role, or nil
// for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
