package models

import (
	"encoding/json"
	"time"
)

// ValidationStatus is the state set by upstream mapping/validation
type ValidationStatus string

const (
	ValidationStatusPending   ValidationStatus = "pending"
	ValidationStatusValid     ValidationStatus = "valid"
	ValidationStatusInvalid   ValidationStatus = "invalid"
	ValidationStatusCorrected ValidationStatus = "corrected"
	ValidationStatusIgnored   ValidationStatus = "ignored"
)

// StagingRow is one parsed-and-mapped source record belonging to an Upload.
// Typed fields are populated by the upstream mapping layer; the ingestion
// engine only reads them and sets the matched entity references + processed
// flag. Once is_processed is true the row is immutable except for audit fields.
type StagingRow struct {
	ID             string `json:"id" db:"id"`
	UploadID       string `json:"upload_id" db:"upload_id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	RowNumber      int    `json:"row_number" db:"row_number"`

	RawData json.RawMessage `json:"raw_data" db:"raw_data"`

	PONumber            *string    `json:"po_number,omitempty" db:"po_number"`
	SupplierName        *string    `json:"supplier_name,omitempty" db:"supplier_name"`
	SupplierCode        *string    `json:"supplier_code,omitempty" db:"supplier_code"`
	MaterialCode        *string    `json:"material_code,omitempty" db:"material_code"`
	MaterialDescription *string    `json:"material_description,omitempty" db:"material_description"`
	Quantity            *float64   `json:"quantity,omitempty" db:"quantity"`
	UnitPrice           *float64   `json:"unit_price,omitempty" db:"unit_price"`
	TotalPrice          *float64   `json:"total_price,omitempty" db:"total_price"`
	Currency            *string    `json:"currency,omitempty" db:"currency"`
	PurchaseDate        *time.Time `json:"purchase_date,omitempty" db:"purchase_date"`
	DeliveryDate        *time.Time `json:"delivery_date,omitempty" db:"delivery_date"`

	ValidationStatus ValidationStatus `json:"validation_status" db:"validation_status"`
	ValidationErrors *string          `json:"validation_errors,omitempty" db:"validation_errors"`
	IsProcessed      bool             `json:"is_processed" db:"is_processed"`

	MatchedSupplierID *string `json:"matched_supplier_id,omitempty" db:"matched_supplier_id"`
	MatchedMaterialID *string `json:"matched_material_id,omitempty" db:"matched_material_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LineTotal returns the row's total price, deriving quantity*unit_price when
// the source file carried no explicit total.
func (r *StagingRow) LineTotal() float64 {
	if r.TotalPrice != nil {
		return *r.TotalPrice
	}
	if r.Quantity != nil && r.UnitPrice != nil {
		return *r.Quantity * *r.UnitPrice
	}
	return 0
}

// HasUsablePrice reports whether the row can yield a price observation
func (r *StagingRow) HasUsablePrice() bool {
	return r.UnitPrice != nil && *r.UnitPrice > 0
}
