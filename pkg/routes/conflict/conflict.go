package conflict

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	fernctx "github.com/openprocure/fern/internal/context"
	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/conflicts"
	"github.com/openprocure/fern/pkg/models"
)

var validate = validator.New()

// Register registers conflict routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("/:id/resolve", Resolve)
	g.POST("/bulk-auto-resolve", BulkAutoResolve)
	g.POST("/bulk-mark-new", BulkMarkAsNew)
}

// List returns conflicts ordered by similarity descending
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "conflict_handler.List")
	defer span.End()

	organizationID := fernctx.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	filters := models.ConflictListFilters{
		Status:       models.ConflictStatus(c.QueryParam("status")),
		ConflictType: models.ConflictType(c.QueryParam("conflict_type")),
		Page:         page,
		PageSize:     pageSize,
	}

	ctx, service, err := ectoinject.GetContext[*conflicts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conflict service")
	}

	response, err := service.List(ctx, organizationID, c.QueryParam("upload_id"), filters)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response)
}

// Resolve applies a reviewer's decision to a conflict
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "conflict_handler.Resolve")
	defer span.End()

	organizationID := fernctx.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	var req models.ResolveConflictRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*conflicts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conflict service")
	}

	resolved, err := service.Resolve(ctx, organizationID, fernctx.GetUserID(ctx), c.Param("id"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resolved)
}

// BulkAutoResolve auto-resolves the given conflicts where similarity still
// clears the threshold
func BulkAutoResolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "conflict_handler.BulkAutoResolve")
	defer span.End()

	organizationID := fernctx.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	var req models.BulkResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*conflicts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conflict service")
	}

	response, err := service.BulkAutoResolve(ctx, organizationID, fernctx.GetUserID(ctx), req.ConflictIDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response)
}

// BulkMarkAsNew resolves the given conflicts as new entities
func BulkMarkAsNew(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "conflict_handler.BulkMarkAsNew")
	defer span.End()

	organizationID := fernctx.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	var req models.BulkResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*conflicts.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conflict service")
	}

	response, err := service.BulkMarkAsNew(ctx, organizationID, fernctx.GetUserID(ctx), req.ConflictIDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response)
}
