package models

import (
	"time"
)

// UploadStatus is the processing state of an upload batch
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusPartial    UploadStatus = "partial"
	UploadStatusFailed     UploadStatus = "failed"
)

// Upload represents one uploaded batch of procurement records
type Upload struct {
	ID             string       `json:"id" db:"id"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	FileName       string       `json:"file_name" db:"file_name"`
	Status         UploadStatus `json:"status" db:"status"`
	TotalRows      int          `json:"total_rows" db:"total_rows"`
	ProcessedRows  int          `json:"processed_rows" db:"processed_rows"`
	Progress       float64      `json:"progress" db:"progress"` // 0-100, updated after each chunk
	ErrorMessage   *string      `json:"error_message,omitempty" db:"error_message"`
	QualityScore   *float64     `json:"quality_score,omitempty" db:"quality_score"`
	DurationMS     *int64       `json:"duration_ms,omitempty" db:"duration_ms"`
	StartedAt      *time.Time   `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true once the upload has reached a final status
func (u *Upload) IsTerminal() bool {
	return u.Status == UploadStatusCompleted || u.Status == UploadStatusPartial || u.Status == UploadStatusFailed
}

// ProcessResult aggregates the counters of one processUpload run
type ProcessResult struct {
	UploadID                 string        `json:"upload_id"`
	Status                   UploadStatus  `json:"status"`
	ProcessedCount           int           `json:"processed_count"`
	ErrorCount               int           `json:"error_count"`
	DuplicateCount           int           `json:"duplicate_count"`
	CreatedSuppliers         int           `json:"created_suppliers"`
	MatchedSuppliers         int           `json:"matched_suppliers"`
	CreatedMaterials         int           `json:"created_materials"`
	MatchedMaterials         int           `json:"matched_materials"`
	CreatedPurchaseOrders    int           `json:"created_purchase_orders"`
	CreatedPriceObservations int           `json:"created_price_observations"`
	CreatedConflicts         int           `json:"created_conflicts"`
	Duration                 time.Duration `json:"duration"`
}
