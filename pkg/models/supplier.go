package models

import "time"

// Supplier is a master-data entity scoped to an organization, identified by
// a unique (organization_id, code) pair. The name is what fuzzy matching
// runs against.
type Supplier struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	Code           string     `json:"code" db:"code"`
	Name           string     `json:"name" db:"name"`
	ContactEmail   *string    `json:"contact_email,omitempty" db:"contact_email"`
	Country        *string    `json:"country,omitempty" db:"country"`
	IsAutoCreated  bool       `json:"is_auto_created" db:"is_auto_created"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
