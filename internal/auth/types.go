package auth

import "errors"

// Role is an authorisation tier of an API client.
type Role string

const (
	// RoleViewer may read state, history and the event stream.
	RoleViewer Role = "viewer"

	// RoleOperator may also execute commands against the PBX.
	RoleOperator Role = "operator"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Sentinel errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
	ErrForbidden    = errors.New("insufficient permissions")
	ErrNoSecret     = errors.New("signing secret is empty")
)
