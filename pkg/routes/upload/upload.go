package upload

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	fernctx "github.com/openprocure/fern/internal/context"
	uploadrepo "github.com/openprocure/fern/internal/repositories/upload"
	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/ingestion"
	"github.com/openprocure/fern/pkg/quality"
)

// Register registers upload routes
func Register(g *echo.Group) {
	g.GET("/:id", Get)
	g.POST("/:id/process", Process)
	g.GET("/:id/quality", QualityReport)
}

// Get returns an upload with its processing status and progress
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "upload_handler.Get")
	defer span.End()

	organizationID := fernctx.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*uploadrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	upload, err := repo.Get(ctx, organizationID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, upload)
}

// Process runs the ingestion pipeline for an upload and returns its counters
func Process(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "upload_handler.Process")
	defer span.End()

	organizationID := fernctx.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	ctx, engine, err := ectoinject.GetContext[*ingestion.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get engine")
	}

	result, err := engine.ProcessUpload(ctx, organizationID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// QualityReport computes the upload's quality report and persists its
// composite score
func QualityReport(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "upload_handler.QualityReport")
	defer span.End()

	organizationID := fernctx.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	ctx, service, err := ectoinject.GetContext[*quality.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get quality service")
	}

	report, err := service.ScoreUpload(ctx, organizationID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}
