package models

import "time"

// PriceObservation is an immutable, append-only time-series fact recording
// what was paid for a material at a point in time, tagged with upload and
// source-row provenance. Never updated or deleted.
type PriceObservation struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	MaterialID     string    `json:"material_id" db:"material_id"`
	SupplierID     *string   `json:"supplier_id,omitempty" db:"supplier_id"`
	ObservedAt     time.Time `json:"observed_at" db:"observed_at"`
	Price          float64   `json:"price" db:"price"`
	Currency       string    `json:"currency" db:"currency"`
	Quantity       *float64  `json:"quantity,omitempty" db:"quantity"`
	UploadID       *string   `json:"upload_id,omitempty" db:"upload_id"`
	StagingRowID   *string   `json:"staging_row_id,omitempty" db:"staging_row_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
