// Package matching resolves incoming supplier and material references against
// an organization's existing entities
package matching

import (
	"github.com/openprocure/fern/pkg/models"
	"github.com/openprocure/fern/pkg/normalizers"
)

// cacheEntry is one indexed entity inside the cache
type cacheEntry struct {
	id             string
	code           string
	name           string
	normalizedName string
}

// entityIndex indexes one entity kind by normalized code and normalized name.
// entries preserves insertion order so fuzzy ranking ties break on the first
// entity encountered.
type entityIndex struct {
	byCode  map[string]*cacheEntry
	byName  map[string]*cacheEntry
	entries []*cacheEntry
}

func newEntityIndex() entityIndex {
	return entityIndex{
		byCode: make(map[string]*cacheEntry),
		byName: make(map[string]*cacheEntry),
	}
}

func (idx *entityIndex) add(id, code, name string) {
	entry := &cacheEntry{
		id:             id,
		code:           code,
		name:           name,
		normalizedName: normalizers.NormalizeEntityName(name),
	}
	idx.entries = append(idx.entries, entry)

	// first entity indexed under a key wins; later duplicates only
	// participate in fuzzy scoring
	if normCode := normalizers.NormalizeCode(code); normCode != "" {
		if _, exists := idx.byCode[normCode]; !exists {
			idx.byCode[normCode] = entry
		}
	}
	if entry.normalizedName != "" {
		if _, exists := idx.byName[entry.normalizedName]; !exists {
			idx.byName[entry.normalizedName] = entry
		}
	}
}

func (idx *entityIndex) lookupCode(code string) *cacheEntry {
	normCode := normalizers.NormalizeCode(code)
	if normCode == "" {
		return nil
	}
	return idx.byCode[normCode]
}

func (idx *entityIndex) lookupName(normalizedName string) *cacheEntry {
	if normalizedName == "" {
		return nil
	}
	return idx.byName[normalizedName]
}

// EntityCache holds one organization's suppliers, materials, and known
// purchase order numbers in memory for the duration of a processing run.
// Built once before chunking; entities created during the run are merged in
// so later rows resolve against them.
type EntityCache struct {
	suppliers entityIndex
	materials entityIndex
	poNumbers map[string]struct{}
}

// NewEntityCache builds a cache from the organization's existing entities
func NewEntityCache(suppliers []models.Supplier, materials []models.Material, poNumbers []string) *EntityCache {
	cache := &EntityCache{
		suppliers: newEntityIndex(),
		materials: newEntityIndex(),
		poNumbers: make(map[string]struct{}, len(poNumbers)),
	}
	for i := range suppliers {
		cache.AddSupplier(&suppliers[i])
	}
	for i := range materials {
		cache.AddMaterial(&materials[i])
	}
	for _, po := range poNumbers {
		cache.AddPONumber(po)
	}
	return cache
}

// AddSupplier merges a supplier into the cache
func (c *EntityCache) AddSupplier(supplier *models.Supplier) {
	c.suppliers.add(supplier.ID, supplier.Code, supplier.Name)
}

// AddMaterial merges a material into the cache
func (c *EntityCache) AddMaterial(material *models.Material) {
	c.materials.add(material.ID, material.Code, material.Description)
}

// AddPONumber records a known purchase order number
func (c *EntityCache) AddPONumber(poNumber string) {
	norm := normalizers.NormalizePONumber(poNumber)
	if norm == "" {
		return
	}
	c.poNumbers[norm] = struct{}{}
}

// HasPONumber reports whether the purchase order number already exists
func (c *EntityCache) HasPONumber(poNumber string) bool {
	_, ok := c.poNumbers[normalizers.NormalizePONumber(poNumber)]
	return ok
}

// SupplierCount returns the number of cached suppliers
func (c *EntityCache) SupplierCount() int {
	return len(c.suppliers.entries)
}

// MaterialCount returns the number of cached materials
func (c *EntityCache) MaterialCount() int {
	return len(c.materials.entries)
}
