package conflict

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/openprocure/fern/internal/database"
	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/models"
)

var columns = []string{
	"id", "organization_id", "upload_id", "staging_row_id", "conflict_type",
	"incoming_value", "incoming_code", "candidates", "highest_similarity",
	"auto_resolve_threshold", "status", "resolved_entity_id", "resolved_by",
	"resolution_notes", "created_at", "updated_at", "resolved_at",
}

// Repository handles matching conflict persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new conflict repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts conflicts in one statement. A row can carry at most one
// conflict per type, so reruns hit the unique index and are skipped.
func (r *Repository) CreateBatch(ctx context.Context, conflicts []*models.MatchingConflict) error {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.CreateBatch")
	defer span.End()

	if len(conflicts) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto("matching_conflicts")
	ib.Cols("id", "organization_id", "upload_id", "staging_row_id", "conflict_type", "incoming_value", "incoming_code", "candidates", "highest_similarity", "auto_resolve_threshold", "status", "created_at", "updated_at")

	for _, c := range conflicts {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.Status == "" {
			c.Status = models.ConflictStatusPending
		}
		ib.Values(c.ID, c.OrganizationID, c.UploadID, c.StagingRowID, c.ConflictType, c.IncomingValue, c.IncomingCode, c.Candidates, c.HighestSimilarity, c.AutoResolveThreshold, c.Status, c.CreatedAt, c.UpdatedAt)
	}

	query, args := ib.OnConflictDoNothing("staging_row_id", "conflict_type").Build()

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(conflicts)}).Error("Failed to create conflicts batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create conflicts")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(conflicts)}).Debug("Created conflicts batch")
	return nil
}

// Get retrieves a conflict by ID
func (r *Repository) Get(ctx context.Context, organizationID string, id string) (*models.MatchingConflict, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("matching_conflicts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", organizationID),
	)

	query, args := sb.Build()
	var conflict models.MatchingConflict
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &conflict, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("conflict %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get conflict")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conflict")
	}

	return &conflict, nil
}

// GetByIDs retrieves conflicts by ID, preserving only those that exist
func (r *Repository) GetByIDs(ctx context.Context, organizationID string, ids []string) ([]models.MatchingConflict, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("matching_conflicts")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.In("id", idsToAny(ids)...),
	)
	sb.OrderBy("highest_similarity DESC", "created_at ASC")

	query, args := sb.Build()
	var conflicts []models.MatchingConflict
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &conflicts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get conflicts by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conflicts")
	}

	return conflicts, nil
}

// List retrieves a filtered page of conflicts ordered by similarity descending
func (r *Repository) List(ctx context.Context, organizationID string, uploadID string, filters models.ConflictListFilters) ([]models.MatchingConflict, int, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.List")
	defer span.End()

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 500 {
		filters.PageSize = 50
	}

	where := func(sb *sqlbuilder.SelectBuilder) []string {
		conditions := []string{sb.Equal("organization_id", organizationID)}
		if uploadID != "" {
			conditions = append(conditions, sb.Equal("upload_id", uploadID))
		}
		if filters.Status != "" {
			conditions = append(conditions, sb.Equal("status", filters.Status))
		}
		if filters.ConflictType != "" {
			conditions = append(conditions, sb.Equal("conflict_type", filters.ConflictType))
		}
		return conditions
	}

	countBuilder := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("matching_conflicts")
	countBuilder.Where(where(countBuilder)...)

	query, args := countBuilder.Build()
	var total int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count conflicts")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conflicts")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("matching_conflicts")
	sb.Where(where(sb)...)
	sb.OrderBy("highest_similarity DESC", "created_at ASC")
	sb.Limit(filters.PageSize)
	sb.Offset((filters.Page - 1) * filters.PageSize)

	query, args = sb.Build()
	var conflicts []models.MatchingConflict
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &conflicts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list conflicts")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conflicts")
	}

	return conflicts, total, nil
}

// Resolve transitions a pending conflict to a terminal status. The status
// guard in the WHERE clause makes resolution first-writer-wins; zero rows
// affected means the conflict was missing or already resolved.
func (r *Repository) Resolve(ctx context.Context, organizationID string, id string, status models.ConflictStatus, resolvedEntityID, resolvedBy, notes *string) error {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Resolve")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("matching_conflicts")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_entity_id", resolvedEntityID),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("resolution_notes", notes),
		sb.Assign("resolved_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", organizationID),
		sb.Equal("status", models.ConflictStatusPending),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve conflict")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve conflict")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("conflict %s is not pending", id))
	}

	return nil
}

// CountPendingByUpload returns how many conflicts of an upload still await
// resolution
func (r *Repository) CountPendingByUpload(ctx context.Context, organizationID string, uploadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.CountPendingByUpload")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("matching_conflicts")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.Equal("upload_id", uploadID),
		sb.Equal("status", models.ConflictStatusPending),
	)

	query, args := sb.Build()
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count pending conflicts")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count pending conflicts")
	}

	return count, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
