package session

import (
	"sync"
	"time"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/records"
)

const (
	DemoOrganizationID = "org-1"
	// RegisteredOrganizationID is given to users registered in LOCAL_FALLBACK.
	RegisteredOrganizationID = "demo-org-id"
)

type demoIdentity struct {
	user         auth.User
	passwordHash string
}

var demoAccounts = []struct {
	id, email, password, first, last string
	role                              auth.Role
	department, position              string
}{
	{"1", "admin@hrbpms.com", "admin123", "System", "Administrator", auth.RoleAdmin, "", "System Administrator"},
	{"2", "hr@hrbpms.com", "hr123", "Sarah", "Mitchell", auth.RoleHR, "dept-1", "HR Manager"},
	{"3", "manager@hrbpms.com", "manager123", "James", "Rodriguez", auth.RoleTeamManager, "dept-2", "Engineering Manager"},
	{"4", "employee@hrbpms.com", "employee123", "Emily", "Chen", auth.RoleEmployee, "dept-2", "Software Developer"},
}

var demoCreatedAt = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

var (
	demoOnce       sync.Once
	demoIdentities []demoIdentity
	demoErr        error
)

// seededIdentities hashes the demo passwords once per process.
func seededIdentities() ([]demoIdentity, error) {
	demoOnce.Do(func() {
		for _, acct := range demoAccounts {
			hash, err := auth.HashPassword(acct.password)
			if err != nil {
				demoErr = err
				return
			}
			demoIdentities = append(demoIdentities, demoIdentity{user: demoUser(acct.id), passwordHash: hash})
		}
	})
	return demoIdentities, demoErr
}

func demoUser(id string) auth.User {
	for _, acct := range demoAccounts {
		if acct.id != id {
			continue
		}
		org := DemoOrganizationID
		user := auth.User{
			ID:             acct.id,
			Email:          acct.email,
			FirstName:      acct.first,
			LastName:       acct.last,
			Role:           acct.role,
			OrganizationID: &org,
			IsActive:       true,
			CreatedAt:      demoCreatedAt,
		}
		if acct.department != "" {
			dept := acct.department
			user.DepartmentID = &dept
		}
		if acct.position != "" {
			pos := acct.position
			user.Position = &pos
		}
		return user
	}
	return auth.User{}
}

// SeedSet is the rows of one collection, inserted in order.
type SeedSet struct {
	Collection string
	Rows       []records.Record
}

// DemoData is the organization, departments, and profiles behind the demo
// identities, in insertion order.
func DemoData() []SeedSet {
	created := demoCreatedAt
	email := "contact@hrbpms.com"
	org := records.Organization{
		ID:        DemoOrganizationID,
		Name:      "HR BPMS Demo",
		Email:     &email,
		Settings:  &records.OrganizationSettings{WorkHoursStart: "09:00", WorkHoursEnd: "18:00", WorkDays: []int{1, 2, 3, 4, 5}, Timezone: "UTC", Currency: "USD"},
		CreatedAt: &created,
	}
	departments := []records.Department{
		{ID: "dept-1", Name: "Human Resources", Code: "HR", OrganizationID: DemoOrganizationID, CreatedAt: &created},
		{ID: "dept-2", Name: "Engineering", Code: "ENG", OrganizationID: DemoOrganizationID, CreatedAt: &created},
	}

	sets := []SeedSet{
		{Collection: records.CollectionOrganizations, Rows: encodeRows([]any{org})},
		{Collection: records.CollectionDepartments, Rows: encodeRows([]any{departments[0], departments[1]})},
	}
	profiles := make([]any, 0, len(demoAccounts))
	for _, acct := range demoAccounts {
		profiles = append(profiles, demoUser(acct.id))
	}
	return append(sets, SeedSet{Collection: records.CollectionProfiles, Rows: encodeRows(profiles)})
}

func encodeRows(values []any) []records.Record {
	rows := make([]records.Record, 0, len(values))
	for _, v := range values {
		rec, err := records.Encode(v)
		if err != nil {
			continue
		}
		rows = append(rows, rec)
	}
	return rows
}
