package models

import (
	"encoding/json"
	"time"
)

// ConflictType identifies which entity resolution produced the conflict
type ConflictType string

const (
	ConflictTypeSupplier ConflictType = "supplier"
	ConflictTypeMaterial ConflictType = "material"
)

// ConflictStatus is the resolution state of a matching conflict.
// pending transitions to exactly one of the terminal states and is never
// re-opened.
type ConflictStatus string

const (
	ConflictStatusPending       ConflictStatus = "pending"
	ConflictStatusResolvedMatch ConflictStatus = "resolved_match"
	ConflictStatusResolvedNew   ConflictStatus = "resolved_new"
	ConflictStatusAutoResolved  ConflictStatus = "auto_resolved"
)

// ConflictCandidate is one ranked match candidate carried by a conflict
type ConflictCandidate struct {
	EntityID string  `json:"entity_id"`
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"` // normalized 0-1
}

// MatchingConflict is a pending-or-resolved adjudication record for one
// staging row's supplier/material resolution. At most one exists per
// (staging_row_id, conflict_type).
type MatchingConflict struct {
	ID                   string          `json:"id" db:"id"`
	OrganizationID       string          `json:"organization_id" db:"organization_id"`
	UploadID             string          `json:"upload_id" db:"upload_id"`
	StagingRowID         string          `json:"staging_row_id" db:"staging_row_id"`
	ConflictType         ConflictType    `json:"conflict_type" db:"conflict_type"`
	IncomingValue        string          `json:"incoming_value" db:"incoming_value"`
	IncomingCode         *string         `json:"incoming_code,omitempty" db:"incoming_code"`
	Candidates           json.RawMessage `json:"candidates" db:"candidates"`
	HighestSimilarity    float64         `json:"highest_similarity" db:"highest_similarity"`
	AutoResolveThreshold float64         `json:"auto_resolve_threshold" db:"auto_resolve_threshold"`
	Status               ConflictStatus  `json:"status" db:"status"`
	ResolvedEntityID     *string         `json:"resolved_entity_id,omitempty" db:"resolved_entity_id"`
	ResolvedBy           *string         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes      *string         `json:"resolution_notes,omitempty" db:"resolution_notes"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// IsTerminal returns true once the conflict has been resolved
func (c *MatchingConflict) IsTerminal() bool {
	return c.Status != ConflictStatusPending
}

// CanTransition reports whether the conflict may move to the given status.
// Only pending conflicts transition, and only to a terminal state.
func (c *MatchingConflict) CanTransition(to ConflictStatus) bool {
	if c.Status != ConflictStatusPending {
		return false
	}
	switch to {
	case ConflictStatusResolvedMatch, ConflictStatusResolvedNew, ConflictStatusAutoResolved:
		return true
	default:
		return false
	}
}

// CandidateList decodes the ranked candidates payload
func (c *MatchingConflict) CandidateList() ([]ConflictCandidate, error) {
	if len(c.Candidates) == 0 {
		return nil, nil
	}
	var candidates []ConflictCandidate
	if err := json.Unmarshal(c.Candidates, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

// BestCandidate returns the top-ranked candidate, if any
func (c *MatchingConflict) BestCandidate() *ConflictCandidate {
	candidates, err := c.CandidateList()
	if err != nil || len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

// Resolution constants for ResolveConflictRequest
const (
	ConflictResolutionMatch = "match"
	ConflictResolutionNew   = "new"
)

// ResolveConflictRequest is the request to resolve a single conflict
type ResolveConflictRequest struct {
	Resolution string  `json:"resolution" validate:"required,oneof=match new"`
	MatchedID  *string `json:"matched_id,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// BulkResolveRequest is the request for bulk auto-resolve / mark-as-new
type BulkResolveRequest struct {
	ConflictIDs []string `json:"conflict_ids" validate:"required,min=1"`
}

// BulkResolveResponse reports how many conflicts a bulk action resolved
type BulkResolveResponse struct {
	ResolvedCount int `json:"resolved_count"`
}

// ConflictListFilters narrows conflict listings
type ConflictListFilters struct {
	Status       ConflictStatus `json:"status,omitempty"`
	ConflictType ConflictType   `json:"conflict_type,omitempty"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
}

// ConflictListResponse is a page of conflicts ordered by similarity desc
type ConflictListResponse struct {
	Items      []MatchingConflict `json:"items"`
	TotalCount int                `json:"total_count"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
}
