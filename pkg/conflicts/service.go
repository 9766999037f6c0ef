// Package conflicts implements the review workflow for matching conflicts
package conflicts

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/models"
	"github.com/openprocure/fern/pkg/normalizers"
)

// ConflictRepository is the persistence surface the service needs
type ConflictRepository interface {
	Get(ctx context.Context, organizationID string, id string) (*models.MatchingConflict, error)
	GetByIDs(ctx context.Context, organizationID string, ids []string) ([]models.MatchingConflict, error)
	List(ctx context.Context, organizationID string, uploadID string, filters models.ConflictListFilters) ([]models.MatchingConflict, int, error)
	Resolve(ctx context.Context, organizationID string, id string, status models.ConflictStatus, resolvedEntityID, resolvedBy, notes *string) error
}

// StagingRowRepository records which entities a resolved row points at
type StagingRowRepository interface {
	SetResolution(ctx context.Context, id string, supplierID, materialID *string) error
}

// SupplierRepository verifies and creates supplier references
type SupplierRepository interface {
	Get(ctx context.Context, organizationID string, id string) (*models.Supplier, error)
	CreateBatch(ctx context.Context, suppliers []*models.Supplier) error
}

// MaterialRepository verifies and creates material references
type MaterialRepository interface {
	Get(ctx context.Context, organizationID string, id string) (*models.Material, error)
	CreateBatch(ctx context.Context, materials []*models.Material) error
}

// Emitter publishes conflict lifecycle events
type Emitter interface {
	ConflictResolved(ctx context.Context, conflict *models.MatchingConflict)
}

// Service adjudicates matching conflicts. Resolution is terminal: a conflict
// resolves exactly once and is never re-opened. Every resolution also settles
// the staging row that raised the conflict, so the row ends up pointing at
// either the chosen existing entity or a freshly created one.
type Service struct {
	conflicts ConflictRepository
	rows      StagingRowRepository
	suppliers SupplierRepository
	materials MaterialRepository
	emitter   Emitter
	logger    ectologger.Logger
}

// NewService creates a new conflict service
func NewService(conflicts ConflictRepository, rows StagingRowRepository, suppliers SupplierRepository, materials MaterialRepository, emitter Emitter, logger ectologger.Logger) *Service {
	return &Service{
		conflicts: conflicts,
		rows:      rows,
		suppliers: suppliers,
		materials: materials,
		emitter:   emitter,
		logger:    logger,
	}
}

// List returns a page of conflicts ordered by similarity descending
func (s *Service) List(ctx context.Context, organizationID string, uploadID string, filters models.ConflictListFilters) (*models.ConflictListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "conflicts.Service.List")
	defer span.End()

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 500 {
		filters.PageSize = 50
	}

	items, total, err := s.conflicts.List(ctx, organizationID, uploadID, filters)
	if err != nil {
		return nil, err
	}

	return &models.ConflictListResponse{
		Items:      items,
		TotalCount: total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
	}, nil
}

// Resolve applies a reviewer's decision to a single conflict
func (s *Service) Resolve(ctx context.Context, organizationID string, userID string, id string, req models.ResolveConflictRequest) (*models.MatchingConflict, error) {
	ctx, span := tracing.StartSpan(ctx, "conflicts.Service.Resolve")
	defer span.End()

	conflict, err := s.conflicts.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if !conflict.CanTransition(models.ConflictStatusResolvedMatch) {
		return nil, httperror.NewHTTPError(http.StatusConflict, "conflict is already resolved")
	}

	var status models.ConflictStatus
	var resolvedEntityID *string

	switch req.Resolution {
	case models.ConflictResolutionMatch:
		if req.MatchedID == nil || *req.MatchedID == "" {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "matched_id is required for a match resolution")
		}
		if err := s.verifyEntity(ctx, organizationID, conflict.ConflictType, *req.MatchedID); err != nil {
			return nil, err
		}
		status = models.ConflictStatusResolvedMatch
		resolvedEntityID = req.MatchedID
	case models.ConflictResolutionNew:
		status = models.ConflictStatusResolvedNew
	default:
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "resolution must be match or new")
	}

	resolvedBy := &userID
	if userID == "" {
		resolvedBy = nil
	}
	if err := s.conflicts.Resolve(ctx, organizationID, id, status, resolvedEntityID, resolvedBy, req.Notes); err != nil {
		return nil, err
	}

	entityID := resolvedEntityID
	if status == models.ConflictStatusResolvedNew {
		created, err := s.createEntity(ctx, conflict)
		if err != nil {
			return nil, err
		}
		entityID = &created
	}
	if err := s.settleRow(ctx, conflict, *entityID); err != nil {
		return nil, err
	}

	resolved, err := s.conflicts.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	if s.emitter != nil {
		s.emitter.ConflictResolved(ctx, resolved)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"conflict_id": id,
		"status":      status,
	}).Info("Resolved conflict")

	return resolved, nil
}

// BulkAutoResolve resolves the given conflicts to their best candidate when
// their recorded similarity still clears the auto-resolve threshold. Conflicts
// below threshold, already resolved, or without candidates are skipped, not
// failed.
func (s *Service) BulkAutoResolve(ctx context.Context, organizationID string, userID string, ids []string) (*models.BulkResolveResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "conflicts.Service.BulkAutoResolve")
	defer span.End()

	conflicts, err := s.conflicts.GetByIDs(ctx, organizationID, ids)
	if err != nil {
		return nil, err
	}

	resolvedBy := &userID
	if userID == "" {
		resolvedBy = nil
	}

	resolved := 0
	for i := range conflicts {
		conflict := &conflicts[i]
		if !conflict.CanTransition(models.ConflictStatusAutoResolved) {
			continue
		}
		if conflict.HighestSimilarity < conflict.AutoResolveThreshold {
			continue
		}
		best := conflict.BestCandidate()
		if best == nil {
			continue
		}

		if err := s.conflicts.Resolve(ctx, organizationID, conflict.ID, models.ConflictStatusAutoResolved, &best.EntityID, resolvedBy, nil); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conflict_id": conflict.ID}).Warn("Skipping conflict that failed to auto-resolve")
			continue
		}
		if err := s.settleRow(ctx, conflict, best.EntityID); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conflict_id": conflict.ID}).Warn("Auto-resolved a conflict but failed to settle its staging row")
		}
		resolved++

		if s.emitter != nil {
			conflict.Status = models.ConflictStatusAutoResolved
			conflict.ResolvedEntityID = &best.EntityID
			s.emitter.ConflictResolved(ctx, conflict)
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"requested": len(ids),
		"resolved":  resolved,
	}).Info("Bulk auto-resolved conflicts")

	return &models.BulkResolveResponse{ResolvedCount: resolved}, nil
}

// BulkMarkAsNew resolves the given pending conflicts as new entities
func (s *Service) BulkMarkAsNew(ctx context.Context, organizationID string, userID string, ids []string) (*models.BulkResolveResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "conflicts.Service.BulkMarkAsNew")
	defer span.End()

	conflicts, err := s.conflicts.GetByIDs(ctx, organizationID, ids)
	if err != nil {
		return nil, err
	}

	resolvedBy := &userID
	if userID == "" {
		resolvedBy = nil
	}

	resolved := 0
	for i := range conflicts {
		conflict := &conflicts[i]
		if !conflict.CanTransition(models.ConflictStatusResolvedNew) {
			continue
		}

		if err := s.conflicts.Resolve(ctx, organizationID, conflict.ID, models.ConflictStatusResolvedNew, nil, resolvedBy, nil); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conflict_id": conflict.ID}).Warn("Skipping conflict that failed to resolve as new")
			continue
		}
		if created, err := s.createEntity(ctx, conflict); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conflict_id": conflict.ID}).Warn("Marked a conflict as new but failed to create its entity")
		} else if err := s.settleRow(ctx, conflict, created); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conflict_id": conflict.ID}).Warn("Marked a conflict as new but failed to settle its staging row")
		}
		resolved++

		if s.emitter != nil {
			conflict.Status = models.ConflictStatusResolvedNew
			s.emitter.ConflictResolved(ctx, conflict)
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"requested": len(ids),
		"resolved":  resolved,
	}).Info("Bulk marked conflicts as new")

	return &models.BulkResolveResponse{ResolvedCount: resolved}, nil
}

func (s *Service) verifyEntity(ctx context.Context, organizationID string, conflictType models.ConflictType, entityID string) error {
	switch conflictType {
	case models.ConflictTypeSupplier:
		_, err := s.suppliers.Get(ctx, organizationID, entityID)
		return err
	case models.ConflictTypeMaterial:
		_, err := s.materials.Get(ctx, organizationID, entityID)
		return err
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown conflict type")
	}
}

// settleRow points the conflicted staging row at the entity the resolution
// chose. Only the column for the conflict's type is written, so a material
// resolution never clears an earlier supplier match on the same row.
func (s *Service) settleRow(ctx context.Context, conflict *models.MatchingConflict, entityID string) error {
	switch conflict.ConflictType {
	case models.ConflictTypeSupplier:
		return s.rows.SetResolution(ctx, conflict.StagingRowID, &entityID, nil)
	case models.ConflictTypeMaterial:
		return s.rows.SetResolution(ctx, conflict.StagingRowID, nil, &entityID)
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown conflict type")
	}
}

// createEntity materializes the new entity a resolved-new decision asked for,
// built from the values the staging row brought in
func (s *Service) createEntity(ctx context.Context, conflict *models.MatchingConflict) (string, error) {
	switch conflict.ConflictType {
	case models.ConflictTypeSupplier:
		supplier := &models.Supplier{
			ID:             uuid.New().String(),
			OrganizationID: conflict.OrganizationID,
			Code:           entityCode("SUP", conflict.IncomingCode, conflict.IncomingValue),
			Name:           conflict.IncomingValue,
			IsAutoCreated:  true,
		}
		if supplier.Name == "" {
			supplier.Name = supplier.Code
		}
		return supplier.ID, s.suppliers.CreateBatch(ctx, []*models.Supplier{supplier})
	case models.ConflictTypeMaterial:
		material := &models.Material{
			ID:             uuid.New().String(),
			OrganizationID: conflict.OrganizationID,
			Code:           entityCode("MAT", conflict.IncomingCode, conflict.IncomingValue),
			Description:    conflict.IncomingValue,
			IsAutoCreated:  true,
		}
		if material.Description == "" {
			material.Description = material.Code
		}
		return material.ID, s.materials.CreateBatch(ctx, []*models.Material{material})
	default:
		return "", httperror.NewHTTPError(http.StatusBadRequest, "unknown conflict type")
	}
}

// entityCode keeps the incoming code when one was supplied, otherwise derives
// a stable placeholder from the incoming name
func entityCode(prefix string, code *string, name string) string {
	if code != nil {
		if normalized := normalizers.NormalizeCode(*code); normalized != "" {
			return normalized
		}
	}
	normalized := normalizers.ApplyChain(name, "nentity", "uppercase", "remove_whitespace")
	if len(normalized) > 24 {
		normalized = normalized[:24]
	}
	return fmt.Sprintf("%s-%s", prefix, normalized)
}
