// Package ingestion drives the batch processing of uploaded procurement
// records: entity resolution, purchase order assembly, price observations,
// and conflict capture.
package ingestion

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/openprocure/fern/internal/database"
	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/matching"
	"github.com/openprocure/fern/pkg/models"
)

// Config holds the engine's tunables
type Config struct {
	ChunkSize             int
	AutoResolveThreshold  float64
	ConflictThreshold     float64
	MaxFuzzyCandidates    int
	MaxConflictCandidates int
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		ChunkSize:             500,
		AutoResolveThreshold:  0.95,
		ConflictThreshold:     0.75,
		MaxFuzzyCandidates:    5,
		MaxConflictCandidates: 3,
	}
}

// UploadRepository is the upload persistence surface the engine needs
type UploadRepository interface {
	Get(ctx context.Context, organizationID string, id string) (*models.Upload, error)
	MarkProcessing(ctx context.Context, organizationID string, id string, totalRows int) error
	UpdateProgress(ctx context.Context, id string, processedRows int, progress float64) error
	Complete(ctx context.Context, id string, status models.UploadStatus, errorMessage *string, duration time.Duration) error
}

// StagingRowRepository reads and flags staging rows
type StagingRowRepository interface {
	ListUnprocessed(ctx context.Context, uploadID string) ([]models.StagingRow, error)
	SetResolution(ctx context.Context, id string, supplierID, materialID *string) error
	MarkProcessed(ctx context.Context, ids []string) error
	SetError(ctx context.Context, id string, message string) error
}

// SupplierRepository is the supplier persistence surface the engine needs
type SupplierRepository interface {
	ListByOrganization(ctx context.Context, organizationID string) ([]models.Supplier, error)
	CreateBatch(ctx context.Context, suppliers []*models.Supplier) error
}

// MaterialRepository is the material persistence surface the engine needs
type MaterialRepository interface {
	ListByOrganization(ctx context.Context, organizationID string) ([]models.Material, error)
	CreateBatch(ctx context.Context, materials []*models.Material) error
}

// PurchaseOrderRepository is the purchase order persistence surface
type PurchaseOrderRepository interface {
	ListPONumbers(ctx context.Context, organizationID string) ([]string, error)
	CreateBatch(ctx context.Context, orders []*models.PurchaseOrder) error
	CreateLines(ctx context.Context, lines []*models.PurchaseOrderLine) error
}

// PriceObservationRepository appends price observations
type PriceObservationRepository interface {
	CreateBatch(ctx context.Context, observations []*models.PriceObservation) error
}

// ConflictRepository persists matching conflicts
type ConflictRepository interface {
	CreateBatch(ctx context.Context, conflicts []*models.MatchingConflict) error
}

// Emitter publishes ingestion lifecycle events
type Emitter interface {
	UploadProcessed(ctx context.Context, result *models.ProcessResult)
	ConflictCreated(ctx context.Context, conflict *models.MatchingConflict)
}

// Engine processes uploads chunk by chunk. Each chunk commits atomically;
// a failed chunk demotes its rows to errors and the run continues.
type Engine struct {
	config       Config
	db           database.DB
	uploads      UploadRepository
	rows         StagingRowRepository
	suppliers    SupplierRepository
	materials    MaterialRepository
	orders       PurchaseOrderRepository
	observations PriceObservationRepository
	conflicts    ConflictRepository
	emitter      Emitter
	logger       ectologger.Logger
}

// NewEngine creates a new ingestion engine
func NewEngine(
	config Config,
	db database.DB,
	uploads UploadRepository,
	rows StagingRowRepository,
	suppliers SupplierRepository,
	materials MaterialRepository,
	orders PurchaseOrderRepository,
	observations PriceObservationRepository,
	conflicts ConflictRepository,
	emitter Emitter,
	logger ectologger.Logger,
) *Engine {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 500
	}
	return &Engine{
		config:       config,
		db:           db,
		uploads:      uploads,
		rows:         rows,
		suppliers:    suppliers,
		materials:    materials,
		orders:       orders,
		observations: observations,
		conflicts:    conflicts,
		emitter:      emitter,
		logger:       logger,
	}
}

// ProcessUpload runs the full ingestion pipeline for one upload and returns
// its counters. Row-level failures are counted, not fatal; the run only fails
// outright when nothing could be processed.
func (e *Engine) ProcessUpload(ctx context.Context, organizationID string, uploadID string) (*models.ProcessResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Engine.ProcessUpload")
	defer span.End()

	start := time.Now()

	rows, err := e.rows.ListUnprocessed(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	if err := e.uploads.MarkProcessing(ctx, organizationID, uploadID, len(rows)); err != nil {
		return nil, err
	}

	result := &models.ProcessResult{UploadID: uploadID}

	cache, err := e.buildCache(ctx, organizationID)
	if err != nil {
		e.finish(ctx, uploadID, result, models.UploadStatusFailed, stringPtr(err.Error()), start)
		return nil, err
	}

	matcher := matching.NewMatcher(matching.Config{
		AutoMatchThreshold:    e.config.AutoResolveThreshold,
		ConflictThreshold:     e.config.ConflictThreshold,
		MaxCandidates:         e.config.MaxFuzzyCandidates,
		MaxConflictCandidates: e.config.MaxConflictCandidates,
	})

	canceled := false
	processedSoFar := 0

	for offset := 0; offset < len(rows); offset += e.config.ChunkSize {
		if ctx.Err() != nil {
			canceled = true
			break
		}

		end := offset + e.config.ChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := make([]*models.StagingRow, 0, end-offset)
		for i := offset; i < end; i++ {
			chunk = append(chunk, &rows[i])
		}

		if err := e.processChunk(ctx, cache, matcher, chunk, result); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"upload_id": uploadID,
				"offset":    offset,
			}).Error("Chunk failed, demoting its rows to errors")
			e.demoteChunk(ctx, chunk, result)

			// the cache may hold entities from the rolled-back plan
			cache, err = e.buildCache(ctx, organizationID)
			if err != nil {
				e.finish(ctx, uploadID, result, models.UploadStatusFailed, stringPtr(err.Error()), start)
				return nil, err
			}
		}

		processedSoFar = end
		progress := float64(processedSoFar) / float64(len(rows)) * 100.0
		if err := e.uploads.UpdateProgress(ctx, uploadID, processedSoFar, progress); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to update upload progress")
		}
	}

	status, errorMessage := runOutcome(result, len(rows), canceled)
	e.finish(ctx, uploadID, result, status, errorMessage, start)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"upload_id":       uploadID,
		"status":          status,
		"processed_count": result.ProcessedCount,
		"error_count":     result.ErrorCount,
		"duplicate_count": result.DuplicateCount,
		"conflicts":       result.CreatedConflicts,
		"duration_ms":     result.Duration.Milliseconds(),
	}).Info("Processed upload")

	if e.emitter != nil {
		e.emitter.UploadProcessed(ctx, result)
	}

	return result, nil
}

// processChunk plans and persists one chunk inside a transaction. A unique
// violation means another writer created one of our entities concurrently;
// the cache is rebuilt and the chunk retried once.
func (e *Engine) processChunk(ctx context.Context, cache *matching.EntityCache, matcher *matching.Matcher, chunk []*models.StagingRow, result *models.ProcessResult) error {
	err := e.runChunk(ctx, cache, matcher, chunk, result)
	if err == nil || !database.IsUniqueViolation(err) {
		return err
	}

	e.logger.WithContext(ctx).Warn("Unique violation during chunk write, rebuilding cache and retrying once")
	fresh, cacheErr := e.buildCache(ctx, chunk[0].OrganizationID)
	if cacheErr != nil {
		return cacheErr
	}
	*cache = *fresh

	return e.runChunk(ctx, cache, matcher, chunk, result)
}

func (e *Engine) runChunk(ctx context.Context, cache *matching.EntityCache, matcher *matching.Matcher, chunk []*models.StagingRow, result *models.ProcessResult) error {
	txCtx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}

	plan := planChunk(cache, matcher, e.config.AutoResolveThreshold, time.Now().UTC(), chunk)

	if err := e.persistPlan(txCtx, plan); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			e.logger.WithContext(ctx).WithError(rbErr).Error("Failed to roll back chunk transaction")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	mergeCounters(result, plan)

	for _, rowErr := range plan.rowErrors {
		result.ErrorCount++
		if err := e.rows.SetError(ctx, rowErr.rowID, rowErr.message); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to record row error")
		}
	}

	if e.emitter != nil {
		for _, conflict := range plan.createConflicts {
			e.emitter.ConflictCreated(ctx, conflict)
		}
	}

	return nil
}

func (e *Engine) persistPlan(txCtx context.Context, plan *chunkPlan) error {
	if err := e.suppliers.CreateBatch(txCtx, plan.createSuppliers); err != nil {
		return err
	}
	if err := e.materials.CreateBatch(txCtx, plan.createMaterials); err != nil {
		return err
	}
	if err := e.orders.CreateBatch(txCtx, plan.createOrders); err != nil {
		return err
	}
	if err := e.orders.CreateLines(txCtx, plan.createLines); err != nil {
		return err
	}
	if err := e.observations.CreateBatch(txCtx, plan.createObservations); err != nil {
		return err
	}
	if err := e.conflicts.CreateBatch(txCtx, plan.createConflicts); err != nil {
		return err
	}
	for _, resolution := range plan.resolutions {
		if resolution.supplierID == nil && resolution.materialID == nil {
			continue
		}
		if err := e.rows.SetResolution(txCtx, resolution.rowID, resolution.supplierID, resolution.materialID); err != nil {
			return err
		}
	}
	return e.rows.MarkProcessed(txCtx, plan.processedRowIDs)
}

// demoteChunk counts a failed chunk's rows as errors without stopping the run
func (e *Engine) demoteChunk(ctx context.Context, chunk []*models.StagingRow, result *models.ProcessResult) {
	for _, row := range chunk {
		result.ErrorCount++
		if err := e.rows.SetError(ctx, row.ID, "chunk write failed"); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to record row error")
		}
	}
}

func (e *Engine) buildCache(ctx context.Context, organizationID string) (*matching.EntityCache, error) {
	suppliers, err := e.suppliers.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	materials, err := e.materials.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	poNumbers, err := e.orders.ListPONumbers(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return matching.NewEntityCache(suppliers, materials, poNumbers), nil
}

func (e *Engine) finish(ctx context.Context, uploadID string, result *models.ProcessResult, status models.UploadStatus, errorMessage *string, start time.Time) {
	result.Status = status
	result.Duration = time.Since(start)
	if err := e.uploads.Complete(ctx, uploadID, status, errorMessage, result.Duration); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to finalize upload")
	}
}

// runOutcome maps the run's counters to a terminal status
func runOutcome(result *models.ProcessResult, totalRows int, canceled bool) (models.UploadStatus, *string) {
	switch {
	case canceled:
		return models.UploadStatusPartial, stringPtr("processing canceled")
	case totalRows > 0 && result.ProcessedCount == 0 && result.DuplicateCount == 0:
		return models.UploadStatusFailed, stringPtr("no rows could be processed")
	case result.ErrorCount > 0:
		return models.UploadStatusPartial, nil
	default:
		return models.UploadStatusCompleted, nil
	}
}

func mergeCounters(result *models.ProcessResult, plan *chunkPlan) {
	result.ProcessedCount += plan.processedCount
	result.DuplicateCount += plan.duplicateCount
	result.CreatedSuppliers += plan.createdSuppliers
	result.MatchedSuppliers += plan.matchedSuppliers
	result.CreatedMaterials += plan.createdMaterials
	result.MatchedMaterials += plan.matchedMaterials
	result.CreatedPurchaseOrders += plan.createdPurchaseOrders
	result.CreatedPriceObservations += plan.createdPriceObservations
	result.CreatedConflicts += plan.createdConflicts
}

func stringPtr(s string) *string {
	return &s
}
