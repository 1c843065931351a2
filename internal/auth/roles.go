package auth

import "strings"

// Role codes known to the campus platform. Assignments live in the store;
// this catalog only fixes the spelling used inside token claims.
const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RolePrincipal    = "PRINCIPAL"
	RoleHOD          = "HOD"
	RoleStaff        = "STAFF"
	RoleStudent      = "STUDENT"
	RoleLabAssistant = "LAB_ASSISTANT"
	RoleAccountant   = "ACCOUNTANT"
	RoleLibrarian    = "LIBRARIAN"
	RoleITAdmin      = "IT_ADMIN"
)

// NormalizeRoles trims, upper-cases and deduplicates role codes while
// preserving first-seen order.
func NormalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToUpper(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}

// RolesIntersect reports whether any held role appears in the required set.
func RolesIntersect(held, required []string) bool {
	if len(held) == 0 || len(required) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(held))
	for _, r := range NormalizeRoles(held) {
		set[r] = struct{}{}
	}
	for _, r := range NormalizeRoles(required) {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
