package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_Identical(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 100.0, scorer.Score("Acme Industrial", "Acme Industrial"))
}

func TestScore_CaseAndWhitespaceInsensitive(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 100.0, scorer.Score("ACME  Corp", " acme corp "))
}

func TestScore_Empty(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 0.0, scorer.Score("", ""))
	assert.Equal(t, 0.0, scorer.Score("acme", ""))
	assert.Equal(t, 0.0, scorer.Score("", "acme"))
	assert.Equal(t, 0.0, scorer.Score("   ", "acme"))
}

func TestScore_Deterministic(t *testing.T) {
	scorer := NewScorer()

	first := scorer.Score("Bolts M8 Zinc", "M8 Zinc Bolt")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score("Bolts M8 Zinc", "M8 Zinc Bolt"))
	}
}

func TestRatio(t *testing.T) {
	scorer := NewScorer()

	// one substitution out of four characters
	assert.InDelta(t, 75.0, scorer.Ratio("abcd", "abce"), 0.001)

	// classic three-edit pair
	assert.InDelta(t, 57.142, scorer.Ratio("kitten", "sitting"), 0.01)

	assert.Equal(t, 100.0, scorer.Ratio("same", "same"))
}

func TestPartialRatio_SubstringMatch(t *testing.T) {
	scorer := NewScorer()

	// shorter string appears verbatim inside the longer one
	assert.Equal(t, 100.0, scorer.PartialRatio("acme", "acme industrial supplies"))
	assert.Equal(t, 100.0, scorer.PartialRatio("global parts ltd", "parts"))
}

func TestTokenSortRatio_OrderInsensitive(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 100.0, scorer.TokenSortRatio("steel plate 3mm", "3mm steel plate"))
	assert.Equal(t, 100.0, scorer.TokenSortRatio("smith john", "john smith"))
}

func TestScore_TakesBestView(t *testing.T) {
	scorer := NewScorer()

	// plain ratio is poor here but token sort is perfect
	score := scorer.Score("Plate Steel 3mm", "3mm Steel Plate")
	assert.Equal(t, 100.0, score)

	// partial ratio rescues a prefix match
	score = scorer.Score("Acme", "Acme Industrial Supplies")
	assert.Equal(t, 100.0, score)
}

func TestScore_DissimilarStaysLow(t *testing.T) {
	scorer := NewScorer()

	score := scorer.Score("Acme Industrial", "Zenith Logistics")
	assert.Less(t, score, 50.0)
}

func TestScore_Symmetric(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t,
		scorer.Score("Acme Industrial", "Acme Industries"),
		scorer.Score("Acme Industries", "Acme Industrial"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "acme corp", Normalize("  ACME   Corp "))
	assert.Equal(t, "", Normalize("   "))
}
