package records

import "time"

// Row shapes of the collections the session layer writes itself.

type OrganizationSettings struct {
	WorkHoursStart string `json:"workHoursStart"`
	WorkHoursEnd   string `json:"workHoursEnd"`
	WorkDays       []int  `json:"workDays"`
	Timezone       string `json:"timezone"`
	Currency       string `json:"currency"`
}

type Organization struct {
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name"`
	LogoURL   *string               `json:"logo_url,omitempty"`
	Address   *string               `json:"address,omitempty"`
	Phone     *string               `json:"phone,omitempty"`
	Email     *string               `json:"email,omitempty"`
	Settings  *OrganizationSettings `json:"settings,omitempty"`
	CreatedAt *time.Time            `json:"created_at,omitempty"`
}

type Department struct {
	ID             string     `json:"id,omitempty"`
	Name           string     `json:"name"`
	Code           string     `json:"code"`
	OrganizationID string     `json:"organization_id"`
	ManagerID      *string    `json:"manager_id,omitempty"`
	ParentID       *string    `json:"parent_id,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}
