package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openprocure/fern/pkg/matching"
	"github.com/openprocure/fern/pkg/models"
	"github.com/openprocure/fern/pkg/normalizers"
)

const defaultCurrency = "USD"

// rowResolution records which entities a staging row resolved to
type rowResolution struct {
	rowID      string
	supplierID *string
	materialID *string
}

// rowError is a non-fatal per-row failure
type rowError struct {
	rowID   string
	message string
}

// chunkPlan is the full set of writes one chunk produces. The planner is
// pure: it reads the cache and the rows and emits the plan; the engine
// persists it inside the chunk transaction.
type chunkPlan struct {
	createSuppliers    []*models.Supplier
	createMaterials    []*models.Material
	createOrders       []*models.PurchaseOrder
	createLines        []*models.PurchaseOrderLine
	createObservations []*models.PriceObservation
	createConflicts    []*models.MatchingConflict

	resolutions     []rowResolution
	processedRowIDs []string
	rowErrors       []rowError

	processedCount           int
	duplicateCount           int
	createdSuppliers         int
	matchedSuppliers         int
	createdMaterials         int
	matchedMaterials         int
	createdPurchaseOrders    int
	createdPriceObservations int
	createdConflicts         int
}

// poGroup collects the chunk's rows sharing one new purchase order number
type poGroup struct {
	poNumber string
	rows     []*models.StagingRow
}

// planChunk resolves one chunk of staging rows against the cache and builds
// the write plan. Entities and purchase order numbers the plan creates are
// merged into the cache so later rows, in this chunk and the next ones,
// resolve against them.
func planChunk(cache *matching.EntityCache, matcher *matching.Matcher, autoResolveThreshold float64, now time.Time, rows []*models.StagingRow) *chunkPlan {
	plan := &chunkPlan{}

	// to-create sets are keyed by normalized name so several rows naming the
	// same new entity produce a single create
	pendingSuppliers := map[string]*models.Supplier{}
	pendingMaterials := map[string]*models.Material{}

	groups := []*poGroup{}
	groupIndex := map[string]*poGroup{}

	for _, row := range rows {
		if row.PONumber == nil || *row.PONumber == "" {
			plan.rowErrors = append(plan.rowErrors, rowError{rowID: row.ID, message: "missing po_number"})
			continue
		}

		poNumber := normalizers.NormalizePONumber(*row.PONumber)
		if cache.HasPONumber(poNumber) {
			plan.duplicateCount++
			plan.processedRowIDs = append(plan.processedRowIDs, row.ID)
			continue
		}

		resolution := rowResolution{rowID: row.ID}

		supplierID, supplierConflict := planSupplier(cache, matcher, pendingSuppliers, plan, row)
		resolution.supplierID = supplierID

		materialID, materialConflict := planMaterial(cache, matcher, pendingMaterials, plan, row)
		resolution.materialID = materialID

		if conflict := supplierConflict; conflict != nil {
			conflict.AutoResolveThreshold = autoResolveThreshold
			plan.createConflicts = append(plan.createConflicts, conflict)
			plan.createdConflicts++
		}
		if conflict := materialConflict; conflict != nil {
			conflict.AutoResolveThreshold = autoResolveThreshold
			plan.createConflicts = append(plan.createConflicts, conflict)
			plan.createdConflicts++
		}

		group, ok := groupIndex[poNumber]
		if !ok {
			group = &poGroup{poNumber: poNumber}
			groupIndex[poNumber] = group
			groups = append(groups, group)
		}
		group.rows = append(group.rows, row)

		if materialID != nil && row.HasUsablePrice() {
			observedAt := now
			if row.PurchaseDate != nil {
				observedAt = *row.PurchaseDate
			}
			plan.createObservations = append(plan.createObservations, &models.PriceObservation{
				ID:             uuid.New().String(),
				OrganizationID: row.OrganizationID,
				MaterialID:     *materialID,
				SupplierID:     supplierID,
				ObservedAt:     observedAt,
				Price:          *row.UnitPrice,
				Currency:       rowCurrency(row),
				Quantity:       row.Quantity,
				UploadID:       &row.UploadID,
				StagingRowID:   &row.ID,
			})
			plan.createdPriceObservations++
		}

		plan.resolutions = append(plan.resolutions, resolution)
		plan.processedRowIDs = append(plan.processedRowIDs, row.ID)
		plan.processedCount++
	}

	planPurchaseOrders(cache, plan, groups)

	return plan
}

// planSupplier resolves a row's supplier reference. Returns the resolved or
// to-be-created supplier ID, plus a conflict record when adjudication is
// needed.
func planSupplier(cache *matching.EntityCache, matcher *matching.Matcher, pending map[string]*models.Supplier, plan *chunkPlan, row *models.StagingRow) (*string, *models.MatchingConflict) {
	code := stringValue(row.SupplierCode)
	name := stringValue(row.SupplierName)
	if code == "" && name == "" {
		return nil, nil
	}

	result := matcher.MatchSupplier(cache, code, name)
	switch result.Outcome {
	case matching.OutcomeMatched:
		plan.matchedSuppliers++
		return &result.EntityID, nil

	case matching.OutcomeConflict:
		return nil, newConflict(row, models.ConflictTypeSupplier, name, row.SupplierCode, result)

	default:
		normalized := normalizers.NormalizeEntityName(name)
		if normalized == "" {
			normalized = normalizers.NormalizeCode(code)
		}
		if existing, ok := pending[normalized]; ok {
			return &existing.ID, nil
		}
		supplier := &models.Supplier{
			ID:             uuid.New().String(),
			OrganizationID: row.OrganizationID,
			Code:           supplierCode(row),
			Name:           name,
			IsAutoCreated:  true,
		}
		if supplier.Name == "" {
			supplier.Name = supplier.Code
		}
		pending[normalized] = supplier
		plan.createSuppliers = append(plan.createSuppliers, supplier)
		plan.createdSuppliers++
		cache.AddSupplier(supplier)
		return &supplier.ID, nil
	}
}

// planMaterial resolves a row's material reference, mirroring planSupplier
func planMaterial(cache *matching.EntityCache, matcher *matching.Matcher, pending map[string]*models.Material, plan *chunkPlan, row *models.StagingRow) (*string, *models.MatchingConflict) {
	code := stringValue(row.MaterialCode)
	description := stringValue(row.MaterialDescription)
	if code == "" && description == "" {
		return nil, nil
	}

	result := matcher.MatchMaterial(cache, code, description)
	switch result.Outcome {
	case matching.OutcomeMatched:
		plan.matchedMaterials++
		return &result.EntityID, nil

	case matching.OutcomeConflict:
		return nil, newConflict(row, models.ConflictTypeMaterial, description, row.MaterialCode, result)

	default:
		normalized := normalizers.NormalizeEntityName(description)
		if normalized == "" {
			normalized = normalizers.NormalizeCode(code)
		}
		if existing, ok := pending[normalized]; ok {
			return &existing.ID, nil
		}
		material := &models.Material{
			ID:             uuid.New().String(),
			OrganizationID: row.OrganizationID,
			Code:           materialCode(row),
			Description:    description,
			IsAutoCreated:  true,
		}
		if material.Description == "" {
			material.Description = material.Code
		}
		pending[normalized] = material
		plan.createMaterials = append(plan.createMaterials, material)
		plan.createdMaterials++
		cache.AddMaterial(material)
		return &material.ID, nil
	}
}

// planPurchaseOrders turns the chunk's PO groups into orders and lines. The
// order total is the sum of its lines' totals; the supplier comes from the
// first row of the group that resolved one.
func planPurchaseOrders(cache *matching.EntityCache, plan *chunkPlan, groups []*poGroup) {
	resolutionByRow := map[string]*rowResolution{}
	for i := range plan.resolutions {
		resolutionByRow[plan.resolutions[i].rowID] = &plan.resolutions[i]
	}

	for _, group := range groups {
		first := group.rows[0]
		order := &models.PurchaseOrder{
			ID:             uuid.New().String(),
			OrganizationID: first.OrganizationID,
			PONumber:       group.poNumber,
			UploadID:       &first.UploadID,
			OrderDate:      first.PurchaseDate,
			Currency:       rowCurrency(first),
		}

		for lineNumber, row := range group.rows {
			resolution := resolutionByRow[row.ID]
			if order.SupplierID == nil && resolution != nil && resolution.supplierID != nil {
				order.SupplierID = resolution.supplierID
			}

			lineTotal := row.LineTotal()
			order.TotalAmount += lineTotal

			line := &models.PurchaseOrderLine{
				ID:              uuid.New().String(),
				OrganizationID:  row.OrganizationID,
				PurchaseOrderID: order.ID,
				StagingRowID:    &row.ID,
				LineNumber:      lineNumber + 1,
				TotalPrice:      lineTotal,
			}
			if resolution != nil {
				line.MaterialID = resolution.materialID
			}
			if row.Quantity != nil {
				line.Quantity = *row.Quantity
			}
			if row.UnitPrice != nil {
				line.UnitPrice = *row.UnitPrice
			}
			plan.createLines = append(plan.createLines, line)
		}

		plan.createOrders = append(plan.createOrders, order)
		plan.createdPurchaseOrders++
		cache.AddPONumber(group.poNumber)
	}
}

func newConflict(row *models.StagingRow, conflictType models.ConflictType, incomingValue string, incomingCode *string, result matching.Result) *models.MatchingConflict {
	payload, err := json.Marshal(result.Candidates)
	if err != nil {
		payload = json.RawMessage("[]")
	}
	return &models.MatchingConflict{
		ID:                uuid.New().String(),
		OrganizationID:    row.OrganizationID,
		UploadID:          row.UploadID,
		StagingRowID:      row.ID,
		ConflictType:      conflictType,
		IncomingValue:     incomingValue,
		IncomingCode:      incomingCode,
		Candidates:        payload,
		HighestSimilarity: result.HighestSimilarity,
		Status:            models.ConflictStatusPending,
	}
}

// supplierCode returns the row's supplier code, deriving a stable placeholder
// from the name when the source carried none
func supplierCode(row *models.StagingRow) string {
	if code := normalizers.NormalizeCode(stringValue(row.SupplierCode)); code != "" {
		return code
	}
	return derivedCode("SUP", stringValue(row.SupplierName))
}

func materialCode(row *models.StagingRow) string {
	if code := normalizers.NormalizeCode(stringValue(row.MaterialCode)); code != "" {
		return code
	}
	return derivedCode("MAT", stringValue(row.MaterialDescription))
}

func derivedCode(prefix, name string) string {
	normalized := normalizers.ApplyChain(name, "nentity", "uppercase", "remove_whitespace")
	if len(normalized) > 24 {
		normalized = normalized[:24]
	}
	return fmt.Sprintf("%s-%s", prefix, normalized)
}

func rowCurrency(row *models.StagingRow) string {
	if row.Currency != nil && *row.Currency != "" {
		return normalizers.NormalizeCurrency(*row.Currency)
	}
	return defaultCurrency
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
