package models

import "time"

// Material is a master-data entity scoped to an organization, identified by
// a unique (organization_id, code) pair. The description is what fuzzy
// matching runs against.
type Material struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	Code           string     `json:"code" db:"code"`
	Description    string     `json:"description" db:"description"`
	Unit           *string    `json:"unit,omitempty" db:"unit"`
	Category       *string    `json:"category,omitempty" db:"category"`
	IsAutoCreated  bool       `json:"is_auto_created" db:"is_auto_created"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
