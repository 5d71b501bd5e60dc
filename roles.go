package identity

import "strings"

// Role is the account's global role
type Role = string

const (
	// RoleUser is a regular storefront customer
	RoleUser Role = "USER"
	// RoleAdmin can manage templates, orders, and blog content
	RoleAdmin Role = "ADMIN"
	// RoleSuperAdmin can additionally manage accounts and roles
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// RoleAtLeast checks if role meets the minimum required level
func RoleAtLeast(r, minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleUser:       0,
		RoleAdmin:      1,
		RoleSuperAdmin: 2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleAdmin,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(roleStr)))
	return role, IsValidRole(role)
}
