package material

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/pkg/errors"

	"github.com/openprocure/fern/internal/database"
	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/models"
)

var columns = []string{
	"id", "organization_id", "code", "description", "unit", "category",
	"is_auto_created", "created_at", "updated_at", "deleted_at",
}

// Repository handles material persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new material repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByOrganization retrieves all active materials of an organization
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Material, error) {
	ctx, span := tracing.StartSpan(ctx, "material.Repository.ListByOrganization")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("materials")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var materials []models.Material
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &materials, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list materials")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list materials")
	}

	return materials, nil
}

// Get retrieves a material by ID
func (r *Repository) Get(ctx context.Context, organizationID string, id string) (*models.Material, error) {
	ctx, span := tracing.StartSpan(ctx, "material.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("materials")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", organizationID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var material models.Material
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &material, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("material %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get material")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get material")
	}

	return &material, nil
}

// GetByCodes retrieves materials by their codes, used to recover after a
// concurrent-create unique violation
func (r *Repository) GetByCodes(ctx context.Context, organizationID string, codes []string) ([]models.Material, error) {
	ctx, span := tracing.StartSpan(ctx, "material.Repository.GetByCodes")
	defer span.End()

	if len(codes) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("materials")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.In("code", codesToAny(codes)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var materials []models.Material
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &materials, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get materials by codes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get materials")
	}

	return materials, nil
}

// CreateBatch inserts materials in one statement. Returns the raw wrapped
// error so callers can detect unique violations and recover.
func (r *Repository) CreateBatch(ctx context.Context, materials []*models.Material) error {
	ctx, span := tracing.StartSpan(ctx, "material.Repository.CreateBatch")
	defer span.End()

	if len(materials) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("materials")
	sb.Cols("id", "organization_id", "code", "description", "unit", "category", "is_auto_created", "created_at", "updated_at")

	for _, m := range materials {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.CreatedAt = now
		m.UpdatedAt = now
		sb.Values(m.ID, m.OrganizationID, m.Code, m.Description, m.Unit, m.Category, m.IsAutoCreated, m.CreatedAt, m.UpdatedAt)
	}

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(materials)}).Error("Failed to create materials batch")
		return errors.Wrap(err, "failed to create materials")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(materials)}).Debug("Created materials batch")
	return nil
}

func codesToAny(codes []string) []any {
	result := make([]any, len(codes))
	for i, code := range codes {
		result[i] = code
	}
	return result
}
