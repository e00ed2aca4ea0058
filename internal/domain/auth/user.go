package auth

import (
	"slices"
	"strings"
	"time"
)

// User is the profile row of an authenticated person. Field names follow the
// profiles collection so rows decode without mapping.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	AvatarURL      *string   `json:"avatar_url"`
	Role           Role      `json:"role"`
	OrganizationID *string   `json:"organization_id"`
	DepartmentID   *string   `json:"department_id"`
	Position       *string   `json:"position"`
	Phone          *string   `json:"phone"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasRole reports whether the user holds one of roles. An empty list never matches.
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	return slices.Contains(roles, u.Role)
}

func (u User) Organization() string {
	if u.OrganizationID == nil {
		return ""
	}
	return *u.OrganizationID
}

type LoginCredentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration creates an organization and its first ADMIN user.
type Registration struct {
	Email               string `json:"email" validate:"required,email"`
	Password            string `json:"password" validate:"required,min=6"`
	FirstName           string `json:"first_name" validate:"required"`
	LastName            string `json:"last_name" validate:"required"`
	Phone               string `json:"phone"`
	Position            string `json:"position"`
	OrganizationName    string `json:"organization_name" validate:"required"`
	OrganizationEmail   string `json:"organization_email" validate:"omitempty,email"`
	OrganizationPhone   string `json:"organization_phone"`
	OrganizationAddress string `json:"organization_address"`
}

type EmployeeCredentials struct {
	Email        string  `json:"email" validate:"required,email"`
	Password     string  `json:"password" validate:"required,min=6"`
	FirstName    string  `json:"first_name" validate:"required"`
	LastName     string  `json:"last_name" validate:"required"`
	Role         Role    `json:"role" validate:"required,role"`
	DepartmentID *string `json:"department_id,omitempty"`
	Position     string  `json:"position"`
	BaseSalary   float64 `json:"base_salary" validate:"gte=0"`
}
