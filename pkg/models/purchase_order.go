package models

import "time"

// PurchaseOrder aggregates staging rows sharing a po_number within one batch.
// Unique per (organization_id, po_number). Its total equals the sum of its
// lines' totals.
type PurchaseOrder struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	PONumber       string     `json:"po_number" db:"po_number"`
	SupplierID     *string    `json:"supplier_id,omitempty" db:"supplier_id"`
	UploadID       *string    `json:"upload_id,omitempty" db:"upload_id"`
	OrderDate      *time.Time `json:"order_date,omitempty" db:"order_date"`
	TotalAmount    float64    `json:"total_amount" db:"total_amount"`
	Currency       string     `json:"currency" db:"currency"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// PurchaseOrderLine is one resolved staging row within a purchase order
type PurchaseOrderLine struct {
	ID              string    `json:"id" db:"id"`
	OrganizationID  string    `json:"organization_id" db:"organization_id"`
	PurchaseOrderID string    `json:"purchase_order_id" db:"purchase_order_id"`
	MaterialID      *string   `json:"material_id,omitempty" db:"material_id"`
	StagingRowID    *string   `json:"staging_row_id,omitempty" db:"staging_row_id"`
	LineNumber      int       `json:"line_number" db:"line_number"`
	Quantity        float64   `json:"quantity" db:"quantity"`
	UnitPrice       float64   `json:"unit_price" db:"unit_price"`
	TotalPrice      float64   `json:"total_price" db:"total_price"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
