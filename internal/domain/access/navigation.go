// Package access decides what a session may see: navigation entries and
// protected routes.
package access

import (
	"strings"

	"hrbpms/internal/domain/auth"
)

// LandingPath is the default route after sign-in.
const LandingPath = "/dashboard"

type NavigationItem struct {
	Label        string       `json:"label"`
	Path         string       `json:"path"`
	Icon         string       `json:"icon"`
	AllowedRoles auth.RoleSet `json:"allowed_roles"`
}

var (
	everyone        = auth.AllRoles()
	managers        = auth.NewRoleSet(auth.RoleAdmin, auth.RoleHR, auth.RoleTeamManager)
	staff           = auth.NewRoleSet(auth.RoleAdmin, auth.RoleHR, auth.RoleEmployee)
	humanResources  = auth.NewRoleSet(auth.RoleAdmin, auth.RoleHR)
	navigationItems = []NavigationItem{
		{Label: "Dashboard", Path: "/dashboard", Icon: "LayoutDashboard", AllowedRoles: everyone},
		{Label: "Employees", Path: "/employees", Icon: "Users", AllowedRoles: managers},
		{Label: "Attendance", Path: "/attendance", Icon: "Clock", AllowedRoles: everyone},
		{Label: "Tasks", Path: "/tasks", Icon: "CheckSquare", AllowedRoles: everyone},
		{Label: "Vacation", Path: "/vacation", Icon: "Calendar", AllowedRoles: everyone},
		{Label: "Documents", Path: "/documents", Icon: "FolderOpen", AllowedRoles: staff},
		{Label: "Payroll", Path: "/payroll", Icon: "DollarSign", AllowedRoles: staff},
		{Label: "Recruitment", Path: "/recruitment", Icon: "UserPlus", AllowedRoles: humanResources},
		{Label: "Departments", Path: "/departments", Icon: "Building2", AllowedRoles: humanResources},
		{Label: "Job Offers", Path: "/jobs", Icon: "Briefcase", AllowedRoles: staff},
		{Label: "Reports", Path: "/reports", Icon: "FileText", AllowedRoles: managers},
		{Label: "Settings", Path: "/settings", Icon: "Settings", AllowedRoles: everyone},
	}
)

// Navigation returns every item in display order.
func Navigation() []NavigationItem {
	out := make([]NavigationItem, len(navigationItems))
	copy(out, navigationItems)
	return out
}

// Visible returns the items role may see. An invalid role sees nothing.
func Visible(role auth.Role) []NavigationItem {
	out := []NavigationItem{}
	if !role.Valid() {
		return out
	}
	for _, item := range navigationItems {
		if item.AllowedRoles.Contains(role) {
			out = append(out, item)
		}
	}
	return out
}

// VisibleTo is Visible for an optional user.
func VisibleTo(user *auth.User) []NavigationItem {
	if user == nil {
		return []NavigationItem{}
	}
	return Visible(user.Role)
}

// IsActive matches the item's own path, and for every item but the landing
// page also any path below it.
func IsActive(item NavigationItem, path string) bool {
	if path == item.Path {
		return true
	}
	return item.Path != LandingPath && strings.HasPrefix(path, item.Path)
}

// ProtectedPages are the client routes behind the session gate.
func ProtectedPages() []string {
	pages := make([]string, 0, len(navigationItems)+1)
	for _, item := range navigationItems {
		pages = append(pages, item.Path)
	}
	return append(pages, "/profile")
}
