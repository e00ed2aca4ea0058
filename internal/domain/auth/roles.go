package auth

import (
	"encoding/json"
	"fmt"
)

// Role is the closed set of roles a user can hold. Exactly one per user.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleHR          Role = "HR"
	RoleTeamManager Role = "TEAM_MANAGER"
	RoleEmployee    Role = "EMPLOYEE"
)

// Roles returns every role, most privileged first.
func Roles() []Role {
	return []Role{RoleAdmin, RoleHR, RoleTeamManager, RoleEmployee}
}

func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleTeamManager, RoleEmployee:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// CanManageEmployees reports whether the role may create accounts for other users.
func CanManageEmployees(r Role) bool {
	switch r {
	case RoleAdmin, RoleHR:
		return true
	case RoleTeamManager, RoleEmployee:
		return false
	}
	return false
}

// RoleSet is an immutable membership test over roles.
type RoleSet struct {
	members map[Role]struct{}
}

func NewRoleSet(roles ...Role) RoleSet {
	members := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		members[role] = struct{}{}
	}
	return RoleSet{members: members}
}

func AllRoles() RoleSet {
	return NewRoleSet(Roles()...)
}

func (s RoleSet) Contains(role Role) bool {
	_, ok := s.members[role]
	return ok
}

func (s RoleSet) Len() int {
	return len(s.members)
}

// Slice returns the members in Roles() order.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s.members))
	for _, role := range Roles() {
		if s.Contains(role) {
			out = append(out, role)
		}
	}
	return out
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}
