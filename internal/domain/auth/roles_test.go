package auth

import (
	"encoding/json"
	"testing"
)

func TestRolesValid(t *testing.T) {
	seen := map[Role]struct{}{}
	for _, role := range Roles() {
		if !role.Valid() {
			t.Fatalf("role %s reported invalid", role)
		}
		if _, ok := seen[role]; ok {
			t.Fatalf("duplicate role %s", role)
		}
		seen[role] = struct{}{}
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 roles, got %d", len(seen))
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	for _, value := range []string{"", "admin", "SUPERUSER", "Hr"} {
		if _, err := ParseRole(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestRoleUnmarshalJSON(t *testing.T) {
	var user User
	if err := json.Unmarshal([]byte(`{"id":"u1","role":"TEAM_MANAGER"}`), &user); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if user.Role != RoleTeamManager {
		t.Fatalf("expected TEAM_MANAGER, got %s", user.Role)
	}

	if err := json.Unmarshal([]byte(`{"id":"u1","role":"OWNER"}`), &user); err == nil {
		t.Fatal("expected unknown role to fail decoding")
	}
}

func TestCanManageEmployees(t *testing.T) {
	want := map[Role]bool{
		RoleAdmin:       true,
		RoleHR:          true,
		RoleTeamManager: false,
		RoleEmployee:    false,
	}
	for _, role := range Roles() {
		if got := CanManageEmployees(role); got != want[role] {
			t.Fatalf("role %s: expected %v, got %v", role, want[role], got)
		}
	}
}

func TestUserHasRole(t *testing.T) {
	var missing *User
	if missing.HasRole(Roles()...) {
		t.Fatal("nil user must not hold any role")
	}

	user := &User{ID: "u1", Role: RoleHR}
	if user.HasRole() {
		t.Fatal("empty role list must not match")
	}
	if !user.HasRole(RoleAdmin, RoleHR) {
		t.Fatal("expected HR to match")
	}
	if user.HasRole(RoleEmployee) {
		t.Fatal("did not expect EMPLOYEE to match")
	}
}

func TestRoleSetSliceOrder(t *testing.T) {
	set := NewRoleSet(RoleEmployee, RoleAdmin)
	got := set.Slice()
	if len(got) != 2 || got[0] != RoleAdmin || got[1] != RoleEmployee {
		t.Fatalf("unexpected order: %v", got)
	}
	if set.Contains(RoleHR) {
		t.Fatal("did not expect HR in set")
	}
	if AllRoles().Len() != len(Roles()) {
		t.Fatal("AllRoles must contain every role")
	}
}
