package supplier

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
	"id", "organization_id", "code", "name", "contact_email", "country",
	"is_auto_created", "created_at", "updated_at", "deleted_at",
}

// Repository handles supplier persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new supplier repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByOrganization retrieves all active suppliers of an organization
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Supplier, error) {
	ctx, span := tracing.StartSpan(ctx, "supplier.Repository.ListByOrganization")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("suppliers")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var suppliers []models.Supplier
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &suppliers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list suppliers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list suppliers")
	}

	return suppliers, nil
}

// Get retrieves a supplier by ID
func (r *Repository) Get(ctx context.Context, organizationID string, id string) (*models.Supplier, error) {
	ctx, span := tracing.StartSpan(ctx, "supplier.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("suppliers")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", organizationID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var supplier models.Supplier
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &supplier, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("supplier %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get supplier")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get supplier")
	}

	return &supplier, nil
}

// GetByCodes retrieves suppliers by their codes, used to recover after a
// concurrent-create unique violation
func (r *Repository) GetByCodes(ctx context.Context, organizationID string, codes []string) ([]models.Supplier, error) {
	ctx, span := tracing.StartSpan(ctx, "supplier.Repository.GetByCodes")
	defer span.End()

	if len(codes) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("suppliers")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.In("code", codesToAny(codes)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var suppliers []models.Supplier
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &suppliers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get suppliers by codes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get suppliers")
	}

	return suppliers, nil
}

// CreateBatch inserts suppliers in one statement. Returns the raw wrapped
// error so callers can detect unique violations and recover.
func (r *Repository) CreateBatch(ctx context.Context, suppliers []*models.Supplier) error {
	ctx, span := tracing.StartSpan(ctx, "supplier.Repository.CreateBatch")
	defer span.End()

	if len(suppliers) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("suppliers")
	sb.Cols("id", "organization_id", "code", "name", "contact_email", "country", "is_auto_created", "created_at", "updated_at")

	for _, s := range suppliers {
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		s.CreatedAt = now
		s.UpdatedAt = now
		sb.Values(s.ID, s.OrganizationID, s.Code, s.Name, s.ContactEmail, s.Country, s.IsAutoCreated, s.CreatedAt, s.UpdatedAt)
	}

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(suppliers)}).Error("Failed to create suppliers batch")
		return errors.Wrap(err, "failed to create suppliers")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(suppliers)}).Debug("Created suppliers batch")
	return nil
}

func codesToAny(codes []string) []any {
	result := make([]any, len(codes))
	for i, code := range codes {
		result[i] = code
	}
	return result
}
