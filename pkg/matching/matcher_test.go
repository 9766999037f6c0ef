package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprocure/fern/pkg/models"
)

// fixedScorer returns a canned score per candidate name (0-100 scale), so
// threshold behavior can be pinned exactly
type fixedScorer struct {
	scores map[string]float64
}

func (f *fixedScorer) Score(_, b string) float64 {
	return f.scores[b]
}

func newTestCache(suppliers ...models.Supplier) *EntityCache {
	return NewEntityCache(suppliers, nil, nil)
}

func supplier(id, code, name string) models.Supplier {
	return models.Supplier{ID: id, Code: code, Name: name}
}

func TestMatchSupplier_ExactCode(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	cache := newTestCache(supplier("sup-1", "SUP-001", "Acme Industrial"))

	result := matcher.MatchSupplier(cache, " sup-001 ", "Totally Different Name")

	assert.Equal(t, OutcomeMatched, result.Outcome)
	assert.Equal(t, "sup-1", result.EntityID)
	assert.Equal(t, MatchedByCode, result.MatchedBy)
	assert.Equal(t, 1.0, result.HighestSimilarity)
}

func TestMatchSupplier_ExactCodeBeatsFuzzy(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	cache := newTestCache(
		supplier("sup-1", "SUP-001", "Zenith Logistics"),
		supplier("sup-2", "SUP-002", "Acme Industrial"),
	)

	// name is a dead ringer for sup-2 but the code says sup-1
	result := matcher.MatchSupplier(cache, "SUP-001", "Acme Industrial")

	assert.Equal(t, OutcomeMatched, result.Outcome)
	assert.Equal(t, "sup-1", result.EntityID)
	assert.Equal(t, MatchedByCode, result.MatchedBy)
}

func TestMatchSupplier_ExactNormalizedName(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	cache := newTestCache(supplier("sup-1", "SUP-001", "Acme Industrial, Inc."))

	result := matcher.MatchSupplier(cache, "", "ACME INDUSTRIAL LLC")

	assert.Equal(t, OutcomeMatched, result.Outcome)
	assert.Equal(t, "sup-1", result.EntityID)
	assert.Equal(t, MatchedByName, result.MatchedBy)
	assert.Equal(t, 1.0, result.HighestSimilarity)
}

func TestMatch_ThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		score   float64 // 0-100
		outcome Outcome
	}{
		{"at auto-match threshold", 95.0, OutcomeMatched},
		{"just below auto-match", 94.0, OutcomeConflict},
		{"at conflict threshold", 75.0, OutcomeConflict},
		{"just below conflict", 74.0, OutcomeCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := NewMatcher(DefaultConfig())
			matcher.scorer = &fixedScorer{scores: map[string]float64{
				"zenith logistics": tt.score,
			}}
			cache := newTestCache(supplier("sup-1", "SUP-001", "Zenith Logistics"))

			result := matcher.MatchSupplier(cache, "", "Zenit Logistics")

			assert.Equal(t, tt.outcome, result.Outcome)
			assert.InDelta(t, tt.score/100.0, result.HighestSimilarity, 0.0001)
			if tt.outcome == OutcomeMatched {
				assert.Equal(t, "sup-1", result.EntityID)
				assert.Equal(t, MatchedByFuzzy, result.MatchedBy)
			}
		})
	}
}

func TestMatch_ConflictCandidatesCappedAndFiltered(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	matcher.scorer = &fixedScorer{scores: map[string]float64{
		"alpha":   90.0,
		"bravo":   85.0,
		"charlie": 80.0,
		"delta":   78.0,
		"echo":    60.0, // below conflict threshold, must not appear
	}}
	cache := newTestCache(
		supplier("s1", "C1", "Alpha"),
		supplier("s2", "C2", "Bravo"),
		supplier("s3", "C3", "Charlie"),
		supplier("s4", "C4", "Delta"),
		supplier("s5", "C5", "Echo"),
	)

	result := matcher.MatchSupplier(cache, "", "Alfa")

	assert.Equal(t, OutcomeConflict, result.Outcome)
	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "s1", result.Candidates[0].EntityID)
	assert.Equal(t, "s2", result.Candidates[1].EntityID)
	assert.Equal(t, "s3", result.Candidates[2].EntityID)
	assert.InDelta(t, 0.90, result.HighestSimilarity, 0.0001)
}

func TestMatch_TieBreaksOnFirstEncountered(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	matcher.scorer = &fixedScorer{scores: map[string]float64{
		"first":  96.0,
		"second": 96.0,
	}}
	cache := newTestCache(
		supplier("s1", "C1", "First"),
		supplier("s2", "C2", "Second"),
	)

	result := matcher.MatchSupplier(cache, "", "Frst")

	assert.Equal(t, OutcomeMatched, result.Outcome)
	assert.Equal(t, "s1", result.EntityID)
}

func TestMatch_EmptyCacheCreates(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	cache := newTestCache()

	result := matcher.MatchSupplier(cache, "SUP-001", "Acme Industrial")

	assert.Equal(t, OutcomeCreate, result.Outcome)
	assert.Empty(t, result.EntityID)
}

func TestMatch_EmptyNameWithUnknownCodeCreates(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	cache := newTestCache(supplier("sup-1", "SUP-001", "Acme Industrial"))

	result := matcher.MatchSupplier(cache, "SUP-999", "")

	assert.Equal(t, OutcomeCreate, result.Outcome)
}

func TestMatchMaterial_FuzzyTokenOrder(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	cache := NewEntityCache(nil, []models.Material{
		{ID: "mat-1", Code: "MAT-001", Description: "Steel Plate 3mm"},
	}, nil)

	result := matcher.MatchMaterial(cache, "", "3mm steel plate")

	assert.Equal(t, OutcomeMatched, result.Outcome)
	assert.Equal(t, "mat-1", result.EntityID)
}

func TestCache_MergeInCreatedEntities(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	cache := newTestCache()

	result := matcher.MatchSupplier(cache, "SUP-001", "Acme Industrial")
	require.Equal(t, OutcomeCreate, result.Outcome)

	created := supplier("sup-new", "SUP-001", "Acme Industrial")
	cache.AddSupplier(&created)

	// same reference later in the run resolves to the created entity
	result = matcher.MatchSupplier(cache, "SUP-001", "Acme Industrial")
	assert.Equal(t, OutcomeMatched, result.Outcome)
	assert.Equal(t, "sup-new", result.EntityID)
	assert.Equal(t, MatchedByCode, result.MatchedBy)
}

func TestCache_PONumbers(t *testing.T) {
	cache := NewEntityCache(nil, nil, []string{"PO-2024-001"})

	assert.True(t, cache.HasPONumber("po-2024-001"))
	assert.False(t, cache.HasPONumber("PO-2024-002"))

	cache.AddPONumber(" po-2024-002 ")
	assert.True(t, cache.HasPONumber("PO-2024-002"))
}

func TestCache_FirstEncounteredWinsIndexCollision(t *testing.T) {
	matcher := NewMatcher(DefaultConfig())
	cache := newTestCache(
		supplier("sup-1", "SUP-001", "Acme Industrial"),
		supplier("sup-2", "SUP-001", "Acme Industrial Inc"),
	)

	result := matcher.MatchSupplier(cache, "SUP-001", "")
	assert.Equal(t, "sup-1", result.EntityID)

	result = matcher.MatchSupplier(cache, "", "acme industrial")
	assert.Equal(t, "sup-1", result.EntityID)
}
