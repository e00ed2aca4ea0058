package records

const (
	CollectionProfiles         = "profiles"
	CollectionOrganizations    = "organizations"
	CollectionDepartments      = "departments"
	CollectionEmployees        = "employees"
	CollectionAttendance       = "attendance"
	CollectionTasks            = "tasks"
	CollectionVacationRequests = "vacation_requests"
	CollectionDocumentRequests = "document_requests"
	CollectionPayrolls         = "payrolls"
	CollectionJobOffers        = "job_offers"
	CollectionCandidates       = "candidates"
	CollectionNotifications    = "notifications"
)

var collections = []string{
	CollectionProfiles,
	CollectionOrganizations,
	CollectionDepartments,
	CollectionEmployees,
	CollectionAttendance,
	CollectionTasks,
	CollectionVacationRequests,
	CollectionDocumentRequests,
	CollectionPayrolls,
	CollectionJobOffers,
	CollectionCandidates,
	CollectionNotifications,
}

// Collections lists every collection exposed to feature views.
func Collections() []string {
	out := make([]string, len(collections))
	copy(out, collections)
	return out
}

func Known(name string) bool {
	for _, c := range collections {
		if c == name {
			return true
		}
	}
	return false
}

// systemFields are assigned by the backend: optional on insert, never updated.
var systemFields = []string{"id", "created_at", "updated_at"}

// WithoutSystemFields drops server-assigned fields from an update payload.
func WithoutSystemFields(partial Record) Record {
	out := partial.Clone()
	for _, field := range systemFields {
		delete(out, field)
	}
	return out
}
