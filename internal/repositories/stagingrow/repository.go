package stagingrow

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/openprocure/fern/internal/database"
	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/models"
)

var columns = []string{
	"id", "upload_id", "organization_id", "row_number", "raw_data",
	"po_number", "supplier_name", "supplier_code", "material_code", "material_description",
	"quantity", "unit_price", "total_price", "currency", "purchase_date", "delivery_date",
	"validation_status", "validation_errors", "is_processed",
	"matched_supplier_id", "matched_material_id", "created_at", "updated_at",
}

// Repository handles staging row persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging row repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListUnprocessed retrieves the upload's valid, not-yet-processed rows ordered
// by source row number. Corrected rows count as valid.
func (r *Repository) ListUnprocessed(ctx context.Context, uploadID string) ([]models.StagingRow, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.ListUnprocessed")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staging_rows")
	sb.Where(
		sb.Equal("upload_id", uploadID),
		sb.Equal("is_processed", false),
		sb.In("validation_status", string(models.ValidationStatusValid), string(models.ValidationStatusCorrected)),
	)
	sb.OrderBy("row_number ASC")

	query, args := sb.Build()
	var rows []models.StagingRow
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unprocessed staging rows")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staging rows")
	}

	return rows, nil
}

// ListByUpload retrieves every staging row of an upload ordered by row number
func (r *Repository) ListByUpload(ctx context.Context, uploadID string) ([]models.StagingRow, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.ListByUpload")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staging_rows")
	sb.Where(sb.Equal("upload_id", uploadID))
	sb.OrderBy("row_number ASC")

	query, args := sb.Build()
	var rows []models.StagingRow
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list staging rows")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staging rows")
	}

	return rows, nil
}

// SetResolution records which entities a row resolved to. A nil ID leaves
// that column untouched, so resolving one side of a row later never clears
// the other side's match.
func (r *Repository) SetResolution(ctx context.Context, id string, supplierID, materialID *string) error {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.SetResolution")
	defer span.End()

	if supplierID == nil && materialID == nil {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("staging_rows")
	assignments := []string{sb.Assign("updated_at", time.Now().UTC())}
	if supplierID != nil {
		assignments = append(assignments, sb.Assign("matched_supplier_id", supplierID))
	}
	if materialID != nil {
		assignments = append(assignments, sb.Assign("matched_material_id", materialID))
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set staging row resolution")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set staging row resolution")
	}

	return nil
}

// MarkProcessed flags rows as consumed by a processing run
func (r *Repository) MarkProcessed(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.MarkProcessed")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("staging_rows")
	sb.Set(
		sb.Assign("is_processed", true),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.In("id", idsToAny(ids)...))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark staging rows as processed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark staging rows as processed")
	}

	return nil
}

// SetError records a processing error on a row without failing the run
func (r *Repository) SetError(ctx context.Context, id string, message string) error {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.SetError")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("staging_rows")
	sb.Set(
		sb.Assign("validation_status", models.ValidationStatusInvalid),
		sb.Assign("validation_errors", message),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set staging row error")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set staging row error")
	}

	return nil
}

// CountByUpload returns how many rows an upload has in total
func (r *Repository) CountByUpload(ctx context.Context, uploadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrow.Repository.CountByUpload")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("staging_rows")
	sb.Where(sb.Equal("upload_id", uploadID))

	query, args := sb.Build()
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count staging rows")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count staging rows")
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
