package rbac

// Platform roles, as carried in app_metadata.role of the access token.
const (
	RoleDropshipper  = "dropshipper"
	RoleSupportAgent = "support_agent"
	RoleAdmin        = "admin"
	RoleSuperAdmin   = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsStaff reports dashboard roles. Staff receive every realtime event.
func IsStaff(role string) bool {
	switch role {
	case RoleSupportAgent, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Known reports whether role is one of the platform roles.
func Known(role string) bool {
	return role == RoleDropshipper || IsStaff(role)
}
