package access

import (
	"testing"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/records"
	"hrbpms/internal/domain/session"
)

func TestNavigationHasTwelveItems(t *testing.T) {
	items := Navigation()
	if len(items) != 12 {
		t.Fatalf("expected 12 items, got %d", len(items))
	}
	if items[0].Path != LandingPath {
		t.Fatalf("expected landing page first, got %s", items[0].Path)
	}
	for _, item := range items {
		if item.AllowedRoles.Len() == 0 {
			t.Fatalf("%s has no roles", item.Label)
		}
	}
}

func TestVisibleMatchesAllowedRoles(t *testing.T) {
	for _, role := range auth.Roles() {
		visible := map[string]bool{}
		for _, item := range Visible(role) {
			visible[item.Path] = true
		}
		for _, item := range Navigation() {
			if visible[item.Path] != item.AllowedRoles.Contains(role) {
				t.Fatalf("role %s item %s: visible=%v allowed=%v", role, item.Path, visible[item.Path], item.AllowedRoles.Contains(role))
			}
		}
	}
}

func TestVisibleCounts(t *testing.T) {
	tests := []struct {
		role auth.Role
		want []string
	}{
		{auth.RoleAdmin, []string{"/dashboard", "/employees", "/attendance", "/tasks", "/vacation", "/documents", "/payroll", "/recruitment", "/departments", "/jobs", "/reports", "/settings"}},
		{auth.RoleHR, []string{"/dashboard", "/employees", "/attendance", "/tasks", "/vacation", "/documents", "/payroll", "/recruitment", "/departments", "/jobs", "/reports", "/settings"}},
		{auth.RoleTeamManager, []string{"/dashboard", "/employees", "/attendance", "/tasks", "/vacation", "/reports", "/settings"}},
		{auth.RoleEmployee, []string{"/dashboard", "/attendance", "/tasks", "/vacation", "/documents", "/payroll", "/jobs", "/settings"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(string(tc.role), func(t *testing.T) {
			got := Visible(tc.role)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d items, got %d", len(tc.want), len(got))
			}
			for i, item := range got {
				if item.Path != tc.want[i] {
					t.Fatalf("item %d: expected %s, got %s", i, tc.want[i], item.Path)
				}
			}
		})
	}
}

func TestVisibleWithoutUser(t *testing.T) {
	if got := VisibleTo(nil); len(got) != 0 {
		t.Fatalf("expected no items without a user, got %d", len(got))
	}
	if got := Visible(auth.Role("ROOT")); len(got) != 0 {
		t.Fatalf("expected no items for an unknown role, got %d", len(got))
	}
}

func TestIsActive(t *testing.T) {
	dashboard := Navigation()[0]
	employees := Navigation()[1]
	tests := []struct {
		name string
		item NavigationItem
		path string
		want bool
	}{
		{"exact", employees, "/employees", true},
		{"nested", employees, "/employees/42", true},
		{"other", employees, "/tasks", false},
		{"landing exact", dashboard, "/dashboard", true},
		{"landing never by prefix", dashboard, "/dashboard/stats", false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := IsActive(tc.item, tc.path); got != tc.want {
				t.Fatalf("IsActive(%s, %s) = %v", tc.item.Path, tc.path, got)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	user := &auth.User{ID: "u1", Role: auth.RoleEmployee}
	tests := []struct {
		name   string
		snap   session.Snapshot
		want   Verdict
		target string
	}{
		{"initializing", session.Snapshot{State: session.StateInitializing, Loading: true}, Loading, ""},
		{"initializing without loading flag", session.Snapshot{State: session.StateInitializing}, Loading, ""},
		{"login in flight", session.Snapshot{State: session.StateUnauthenticated, Loading: true}, Loading, ""},
		{"unauthenticated", session.Snapshot{State: session.StateUnauthenticated}, Redirect, LoginPath},
		{"authenticated", session.Snapshot{State: session.StateAuthenticated, User: user}, Allow, ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.snap)
			if got.Verdict != tc.want || got.Target != tc.target {
				t.Fatalf("Decide = %+v, want %s %q", got, tc.want, tc.target)
			}
		})
	}
}

func TestProtectedPagesIncludeProfile(t *testing.T) {
	pages := ProtectedPages()
	if len(pages) != 13 || pages[len(pages)-1] != "/profile" {
		t.Fatalf("unexpected pages %v", pages)
	}
}

func TestCanWrite(t *testing.T) {
	manager := &auth.User{ID: "m1", Role: auth.RoleTeamManager}
	admin := &auth.User{ID: "a1", Role: auth.RoleAdmin}
	tests := []struct {
		name       string
		user       *auth.User
		collection string
		id         string
		fields     records.Record
		want       bool
	}{
		{"no user", nil, records.CollectionTasks, "", records.Record{"title": "x"}, false},
		{"admin profiles", admin, records.CollectionProfiles, "m1", records.Record{"role": "HR"}, true},
		{"manager tasks", manager, records.CollectionTasks, "", records.Record{"title": "x"}, true},
		{"manager departments", manager, records.CollectionDepartments, "", records.Record{"name": "x"}, false},
		{"own phone", manager, records.CollectionProfiles, "m1", records.Record{"phone": "1"}, true},
		{"own role", manager, records.CollectionProfiles, "m1", records.Record{"role": "ADMIN"}, false},
		{"own active flag", manager, records.CollectionProfiles, "m1", records.Record{"is_active": true}, false},
		{"own delete", manager, records.CollectionProfiles, "m1", nil, false},
		{"payrolls", manager, records.CollectionPayrolls, "p1", records.Record{"status": "PAID"}, false},
	}
	for _, tc := range tests {
		if got := CanWrite(tc.user, tc.collection, tc.id, tc.fields); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
