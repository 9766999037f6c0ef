package priceobservation

import (
	"context"
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

// Repository handles price observation persistence. Observations are
// append-only; there are no update or delete operations.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new price observation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch appends price observations in one statement
func (r *Repository) CreateBatch(ctx context.Context, observations []*models.PriceObservation) error {
	ctx, span := tracing.StartSpan(ctx, "priceobservation.Repository.CreateBatch")
	defer span.End()

	if len(observations) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("price_observations")
	sb.Cols("id", "organization_id", "material_id", "supplier_id", "observed_at", "price", "currency", "quantity", "upload_id", "staging_row_id", "created_at")

	for _, o := range observations {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		o.CreatedAt = now
		sb.Values(o.ID, o.OrganizationID, o.MaterialID, o.SupplierID, o.ObservedAt, o.Price, o.Currency, o.Quantity, o.UploadID, o.StagingRowID, o.CreatedAt)
	}

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(observations)}).Error("Failed to create price observations batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create price observations")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(observations)}).Debug("Created price observations batch")
	return nil
}

// ListByMaterial retrieves recent observations for a material, newest first
func (r *Repository) ListByMaterial(ctx context.Context, organizationID string, materialID string, limit int) ([]models.PriceObservation, error) {
	ctx, span := tracing.StartSpan(ctx, "priceobservation.Repository.ListByMaterial")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "organization_id", "material_id", "supplier_id", "observed_at", "price", "currency", "quantity", "upload_id", "staging_row_id", "created_at")
	sb.From("price_observations")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.Equal("material_id", materialID),
	)
	sb.OrderBy("observed_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var observations []models.PriceObservation
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &observations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list price observations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list price observations")
	}

	return observations, nil
}

// AveragePriceByMaterial returns the mean observed price per material for an
// upload's organization, used by quality accuracy sampling
func (r *Repository) AveragePriceByMaterial(ctx context.Context, organizationID string, materialIDs []string) (map[string]float64, error) {
	ctx, span := tracing.StartSpan(ctx, "priceobservation.Repository.AveragePriceByMaterial")
	defer span.End()

	if len(materialIDs) == 0 {
		return map[string]float64{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("material_id", "AVG(price) AS avg_price")
	sb.From("price_observations")
	sb.Where(
		sb.Equal("organization_id", organizationID),
		sb.In("material_id", idsToAny(materialIDs)...),
	)
	sb.GroupBy("material_id")

	query, args := sb.Build()
	rows, err := database.FromContext(ctx, r.db).QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to aggregate price observations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate price observations")
	}
	defer rows.Close()

	averages := make(map[string]float64)
	for rows.Next() {
		var materialID string
		var avgPrice float64
		if err := rows.Scan(&materialID, &avgPrice); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to scan price aggregate")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate price observations")
		}
		averages[materialID] = avgPrice
	}

	return averages, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
