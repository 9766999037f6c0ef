// Package events handles event emission for the ingestion lifecycle
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	fernctx "github.com/openprocure/fern/internal/context"
	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/kafka"
	"github.com/openprocure/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes ingestion lifecycle events. Event publishing is
// best-effort: a failed publish is logged and dropped, never surfaced to the
// operation that produced it.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter. A nil producer disables emission.
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// UploadProcessed emits the final counters of a processing run
func (e *Emitter) UploadProcessed(ctx context.Context, result *models.ProcessResult) {
	if e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.UploadProcessed")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version":             SchemaVersion,
		"status":                     result.Status,
		"processed_count":            result.ProcessedCount,
		"error_count":                result.ErrorCount,
		"duplicate_count":            result.DuplicateCount,
		"created_suppliers":          result.CreatedSuppliers,
		"matched_suppliers":          result.MatchedSuppliers,
		"created_materials":          result.CreatedMaterials,
		"matched_materials":          result.MatchedMaterials,
		"created_purchase_orders":    result.CreatedPurchaseOrders,
		"created_price_observations": result.CreatedPriceObservations,
		"created_conflicts":          result.CreatedConflicts,
		"duration_ms":                result.Duration.Milliseconds(),
	})

	event := &kafka.IngestionEvent{
		EventType:      "upload.processed",
		OrganizationID: fernctx.GetOrganizationID(ctx),
		SubjectID:      result.UploadID,
		SubjectType:    "upload",
		Data:           data,
	}

	if err := e.producer.PublishIngestionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit upload.processed event")
	}
}

// ConflictCreated emits a conflict captured during processing
func (e *Emitter) ConflictCreated(ctx context.Context, conflict *models.MatchingConflict) {
	e.emitConflict(ctx, "conflict.created", conflict)
}

// ConflictResolved emits a conflict resolution
func (e *Emitter) ConflictResolved(ctx context.Context, conflict *models.MatchingConflict) {
	e.emitConflict(ctx, "conflict.resolved", conflict)
}

func (e *Emitter) emitConflict(ctx context.Context, eventType string, conflict *models.MatchingConflict) {
	if e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emitConflict")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version":     SchemaVersion,
		"upload_id":          conflict.UploadID,
		"staging_row_id":     conflict.StagingRowID,
		"conflict_type":      conflict.ConflictType,
		"status":             conflict.Status,
		"highest_similarity": conflict.HighestSimilarity,
		"resolved_entity_id": conflict.ResolvedEntityID,
	})

	event := &kafka.IngestionEvent{
		EventType:      eventType,
		OrganizationID: conflict.OrganizationID,
		SubjectID:      conflict.ID,
		SubjectType:    "conflict",
		Data:           data,
	}

	if err := e.producer.PublishIngestionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
	}
}
