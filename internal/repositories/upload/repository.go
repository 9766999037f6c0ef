package upload

import (
	"context"
	"fmt"
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
	"id", "organization_id", "file_name", "status", "total_rows", "processed_rows",
	"progress", "error_message", "quality_score", "duration_ms", "started_at",
	"completed_at", "created_at", "updated_at",
}

// Repository handles upload persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new upload repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an upload by ID
func (r *Repository) Get(ctx context.Context, organizationID string, id string) (*models.Upload, error) {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("uploads")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", organizationID),
	)

	query, args := sb.Build()
	var upload models.Upload
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &upload, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("upload %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get upload")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get upload")
	}

	return &upload, nil
}

// MarkProcessing transitions the upload to processing and stamps started_at.
// Pending uploads start a first run and partial uploads start a resumption;
// any other status returns a conflict error so a run cannot be started twice.
func (r *Repository) MarkProcessing(ctx context.Context, organizationID string, id string, totalRows int) error {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.MarkProcessing")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("uploads")
	sb.Set(
		sb.Assign("status", models.UploadStatusProcessing),
		sb.Assign("total_rows", totalRows),
		sb.Assign("processed_rows", 0),
		sb.Assign("progress", 0),
		sb.Assign("error_message", nil),
		sb.Assign("started_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", organizationID),
		sb.In("status", string(models.UploadStatusPending), string(models.UploadStatusPartial)),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark upload as processing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark upload as processing")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("upload %s is not pending or partial", id))
	}

	return nil
}

// UpdateProgress records chunk completion
func (r *Repository) UpdateProgress(ctx context.Context, id string, processedRows int, progress float64) error {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.UpdateProgress")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("uploads")
	sb.Set(
		sb.Assign("processed_rows", processedRows),
		sb.Assign("progress", progress),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update upload progress")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update upload progress")
	}

	return nil
}

// Complete finalizes the upload with a terminal status
func (r *Repository) Complete(ctx context.Context, id string, status models.UploadStatus, errorMessage *string, duration time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.Complete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("uploads")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("error_message", errorMessage),
		sb.Assign("duration_ms", duration.Milliseconds()),
		sb.Assign("completed_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to complete upload")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete upload")
	}

	return nil
}

// SetQualityScore persists the composite quality score onto the upload
func (r *Repository) SetQualityScore(ctx context.Context, organizationID string, id string, score float64) error {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.SetQualityScore")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("uploads")
	sb.Set(
		sb.Assign("quality_score", score),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", organizationID),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set upload quality score")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set upload quality score")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("upload %s not found", id))
	}

	return nil
}
