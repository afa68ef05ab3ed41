package auth

// Admin role constants.
const (
	RoleViewer     = "viewer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// AllAdminRoles returns all valid admin roles.
func AllAdminRoles() []string {
	return []string{RoleViewer, RoleAdmin, RoleSuperAdmin}
}

// WriteRoles returns roles that can move money or change gateway settings.
func WriteRoles() []string {
	return []string{RoleAdmin, RoleSuperAdmin}
}

// CredentialRoles returns roles that may rotate gateway credentials.
func CredentialRoles() []string {
	return []string{RoleSuperAdmin}
}
