package purchaseorder

import (
	"context"
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

// Repository handles purchase order persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new purchase order repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListPONumbers retrieves every known purchase order number of an organization
func (r *Repository) ListPONumbers(ctx context.Context, organizationID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.ListPONumbers")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("po_number")
	sb.From("purchase_orders")
	sb.Where(sb.Equal("organization_id", organizationID))

	query, args := sb.Build()
	var poNumbers []string
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &poNumbers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list purchase order numbers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list purchase order numbers")
	}

	return poNumbers, nil
}

// CreateBatch inserts purchase orders in one statement. Returns the raw
// wrapped error so callers can detect unique violations and recover.
func (r *Repository) CreateBatch(ctx context.Context, orders []*models.PurchaseOrder) error {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.CreateBatch")
	defer span.End()

	if len(orders) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("purchase_orders")
	sb.Cols("id", "organization_id", "po_number", "supplier_id", "upload_id", "order_date", "total_amount", "currency", "created_at", "updated_at")

	for _, o := range orders {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		o.CreatedAt = now
		o.UpdatedAt = now
		sb.Values(o.ID, o.OrganizationID, o.PONumber, o.SupplierID, o.UploadID, o.OrderDate, o.TotalAmount, o.Currency, o.CreatedAt, o.UpdatedAt)
	}

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(orders)}).Error("Failed to create purchase orders batch")
		return errors.Wrap(err, "failed to create purchase orders")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(orders)}).Debug("Created purchase orders batch")
	return nil
}

// CreateLines inserts purchase order lines in one statement
func (r *Repository) CreateLines(ctx context.Context, lines []*models.PurchaseOrderLine) error {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.CreateLines")
	defer span.End()

	if len(lines) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("purchase_order_lines")
	sb.Cols("id", "organization_id", "purchase_order_id", "material_id", "staging_row_id", "line_number", "quantity", "unit_price", "total_price", "created_at")

	for _, l := range lines {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.CreatedAt = now
		sb.Values(l.ID, l.OrganizationID, l.PurchaseOrderID, l.MaterialID, l.StagingRowID, l.LineNumber, l.Quantity, l.UnitPrice, l.TotalPrice, l.CreatedAt)
	}

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(lines)}).Error("Failed to create purchase order lines")
		return errors.Wrap(err, "failed to create purchase order lines")
	}

	return nil
}
