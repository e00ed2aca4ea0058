package access

import (
	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/records"
)

// staffOnly collections hold organization structure and pay data; only
// ADMIN and HR write to them.
var staffOnly = map[string]bool{
	records.CollectionOrganizations: true,
	records.CollectionDepartments:   true,
	records.CollectionProfiles:      true,
	records.CollectionEmployees:     true,
	records.CollectionPayrolls:      true,
}

// protectedProfileFields decide identity, tenancy and privilege.
var protectedProfileFields = []string{"id", "email", "role", "organization_id", "department_id", "is_active"}

var staffRoles = auth.NewRoleSet(auth.RoleAdmin, auth.RoleHR)

// CanWrite reports whether user may change the row id of collection with
// fields. id is empty for inserts. A user may update their own profile as
// long as no protected field is touched.
func CanWrite(user *auth.User, collection, id string, fields records.Record) bool {
	if user == nil {
		return false
	}
	if staffRoles.Contains(user.Role) {
		return true
	}
	if !staffOnly[collection] {
		return true
	}
	if collection != records.CollectionProfiles || id == "" || id != user.ID || fields == nil {
		return false
	}
	for _, field := range protectedProfileFields {
		if _, ok := fields[field]; ok {
			return false
		}
	}
	return true
}
