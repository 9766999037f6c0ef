package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprocure/fern/pkg/models"
)

func floatPtr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	scorer := NewScorer(100)
	scorer.now = func() time.Time { return testNow }
	return scorer
}

// cleanRow builds a row with every field populated and internally consistent
// values: delivery five days after purchase, total matching qty*price
func cleanRow(po, supplier, material string, qty, unitPrice float64) models.StagingRow {
	purchase := testNow.AddDate(0, 0, -10)
	return models.StagingRow{
		PONumber:            strPtr(po),
		SupplierName:        strPtr(supplier),
		MaterialDescription: strPtr(material),
		Quantity:            floatPtr(qty),
		UnitPrice:           floatPtr(unitPrice),
		TotalPrice:          floatPtr(qty * unitPrice),
		Currency:            strPtr("USD"),
		PurchaseDate:        timePtr(purchase),
		DeliveryDate:        timePtr(purchase.AddDate(0, 0, 5)),
	}
}

func TestScore_PerfectRows(t *testing.T) {
	scorer := newTestScorer()

	rows := []models.StagingRow{
		cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("PO-2", "Zenith Logistics", "Copper Wire 2mm", 2, 11),
	}

	report := scorer.Score("upload-1", rows, nil)

	assert.Equal(t, 2, report.RecordCount)
	require.Len(t, report.Dimensions, 6)
	assert.Equal(t, 100.0, report.Dimension(models.DimensionCompleteness).Score)
	assert.Equal(t, 100.0, report.Dimension(models.DimensionConsistency).Score)
	assert.Equal(t, 100.0, report.Dimension(models.DimensionValidity).Score)
	assert.Equal(t, 100.0, report.Dimension(models.DimensionTimeliness).Score)
	assert.Equal(t, 100.0, report.Dimension(models.DimensionUniqueness).Score)
	// no history: accuracy stays neutral
	assert.Equal(t, neutralAccuracy, report.Dimension(models.DimensionAccuracy).Score)

	// 0.9*100 + 0.1*75
	assert.InDelta(t, 97.5, report.CompositeScore, 0.001)
	assert.Equal(t, "A", report.Grade)
	assert.Empty(t, report.Recommendations)
}

func TestScore_EmptyUpload(t *testing.T) {
	scorer := newTestScorer()

	report := scorer.Score("upload-1", nil, nil)

	assert.Equal(t, 0, report.RecordCount)
	for _, d := range report.Dimensions {
		assert.Equal(t, 100.0, d.Score, d.Name)
	}
	assert.Equal(t, 100.0, report.CompositeScore)
	assert.Equal(t, "A", report.Grade)
}

func TestScoreCompleteness(t *testing.T) {
	full := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	empty := models.StagingRow{}

	score, issues := scoreCompleteness([]models.StagingRow{full, empty})

	// required: one row fully populated, one fully empty -> 50; the full
	// row's four optional fields add half the bonus
	assert.InDelta(t, 52.5, score, 0.001)
	assert.Len(t, issues, 5)
}

func TestScoreCompleteness_OptionalFieldBonus(t *testing.T) {
	row := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	row.Quantity = nil

	score, issues := scoreCompleteness([]models.StagingRow{row})

	// 4 of 5 required fields, full optional bonus
	assert.InDelta(t, 85.0, score, 0.001)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "quantity")
}

func TestScoreCompleteness_CodeSubstitutesForName(t *testing.T) {
	row := cleanRow("PO-1", "", "", 4, 16)
	row.SupplierName = nil
	row.SupplierCode = strPtr("SUP-001")
	row.MaterialDescription = nil
	row.MaterialCode = strPtr("MAT-001")

	score, issues := scoreCompleteness([]models.StagingRow{row})

	assert.InDelta(t, 100.0, score, 0.001)
	assert.Empty(t, issues)
}

func TestScoreConsistency_DeliveryBeforePurchaseAndOutlier(t *testing.T) {
	good := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)

	bad := cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 16000)
	bad.DeliveryDate = timePtr(bad.PurchaseDate.AddDate(0, 0, -20))

	score, issues := scoreConsistency([]models.StagingRow{good, bad})

	// one of two rows delivered before purchase (-20); against the inflated
	// upload average the cheap row is below a tenth (-20)
	assert.InDelta(t, 60.0, score, 0.001)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "delivery date before the purchase date")
	assert.Contains(t, issues[1], "extreme outliers")
}

func TestScoreConsistency_TooManyCurrencies(t *testing.T) {
	rows := []models.StagingRow{
		cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("PO-3", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("PO-4", "Acme Industrial", "Steel Plate 3mm", 4, 16),
	}
	rows[1].Currency = strPtr("EUR")
	rows[2].Currency = strPtr("GBP")
	rows[3].Currency = strPtr("JPY")

	score, issues := scoreConsistency(rows)

	// four distinct currencies: one over the limit
	assert.InDelta(t, 90.0, score, 0.001)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "4 distinct currencies")
}

func TestScoreConsistency_ThreeCurrenciesAllowed(t *testing.T) {
	rows := []models.StagingRow{
		cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("PO-3", "Acme Industrial", "Steel Plate 3mm", 4, 16),
	}
	rows[1].Currency = strPtr("EUR")
	rows[2].Currency = strPtr("GBP")

	score, issues := scoreConsistency(rows)

	assert.InDelta(t, 100.0, score, 0.001)
	assert.Empty(t, issues)
}

func TestScoreValidity(t *testing.T) {
	good := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)

	negativePrice := cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	negativePrice.UnitPrice = floatPtr(-5)

	futureDate := cleanRow("PO-3", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	futureDate.PurchaseDate = timePtr(testNow.AddDate(1, 0, 0))

	badCurrency := cleanRow("PO-4", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	badCurrency.Currency = strPtr("DOLLARS")

	score, issues := scoreValidity([]models.StagingRow{good, negativePrice, futureDate, badCurrency}, testNow)

	assert.InDelta(t, 25.0, score, 0.001)
	assert.Len(t, issues, 3)
}

func TestScoreTimeliness_MostRecentDateBuckets(t *testing.T) {
	cases := []struct {
		name     string
		daysOld  int
		expected float64
	}{
		{"within a month", 10, 100},
		{"two months old", 60, 80},
		{"four months old", 120, 60},
		{"seven months old", 200, 40},
		{"over a year old", 400, 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
			row.PurchaseDate = timePtr(testNow.AddDate(0, 0, -tc.daysOld))
			row.DeliveryDate = nil

			score, _ := scoreTimeliness([]models.StagingRow{row}, testNow)

			assert.InDelta(t, tc.expected, score, 0.001)
		})
	}
}

func TestScoreTimeliness_OldRowsDoNotDragDownARecentBatch(t *testing.T) {
	recent := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	old := cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	old.PurchaseDate = timePtr(testNow.AddDate(-3, 0, 0))

	score, _ := scoreTimeliness([]models.StagingRow{recent, old}, testNow)

	// newest date is 10 days old: full marks, span bonus absorbed by the cap
	assert.InDelta(t, 100.0, score, 0.001)
}

func TestScoreTimeliness_SpanBonus(t *testing.T) {
	newer := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	newer.PurchaseDate = timePtr(testNow.AddDate(0, 0, -60))
	older := cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	older.PurchaseDate = timePtr(testNow.AddDate(0, 0, -100))

	score, _ := scoreTimeliness([]models.StagingRow{newer, older}, testNow)

	// 80 for a two-month-old newest date, plus the 40-day span bonus
	assert.InDelta(t, 85.0, score, 0.001)
}

func TestScoreTimeliness_NoDates(t *testing.T) {
	row := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	row.PurchaseDate = nil

	score, issues := scoreTimeliness([]models.StagingRow{row}, testNow)

	assert.InDelta(t, 50.0, score, 0.001)
	assert.NotEmpty(t, issues)
}

func TestScoreUniqueness_DuplicatePONumbers(t *testing.T) {
	rows := []models.StagingRow{
		cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("po-1", "Acme Industrial", "Copper Wire 2mm", 2, 11),
		cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("PO-3", "Acme Industrial", "Steel Plate 3mm", 4, 16),
	}

	score, issues := scoreUniqueness(rows)

	// one duplicate in four rows: 25% rate, 2 points per percent
	assert.InDelta(t, 50.0, score, 0.001)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "1 of 4")
}

func TestScoreUniqueness_AllRowsShareOnePO(t *testing.T) {
	rows := make([]models.StagingRow, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16))
	}

	score, issues := scoreUniqueness(rows)

	// 90% duplicate rate floors the dimension
	assert.InDelta(t, 0.0, score, 0.001)
	assert.NotEmpty(t, issues)
}

func TestScoreUniqueness_MissingPONumbersIgnored(t *testing.T) {
	withPO := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	without := cleanRow("", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	without.PONumber = nil

	score, issues := scoreUniqueness([]models.StagingRow{withPO, without, without})

	assert.InDelta(t, 100.0, score, 0.001)
	assert.Empty(t, issues)
}

func TestScoreAccuracy(t *testing.T) {
	inRange := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	inRange.MatchedMaterialID = strPtr("mat-1")

	wayOff := cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 60)
	wayOff.MatchedMaterialID = strPtr("mat-1")

	noHistory := cleanRow("PO-3", "Acme Industrial", "Copper Wire 2mm", 2, 11)
	noHistory.MatchedMaterialID = strPtr("mat-2")

	history := map[string]float64{"mat-1": 15.0}

	score, issues := scoreAccuracy([]models.StagingRow{inRange, wayOff, noHistory}, history, 100)

	// 60 is four times the average of 15: one outlier of two checked
	assert.InDelta(t, 50.0, score, 0.001)
	assert.NotEmpty(t, issues)
}

func TestScoreAccuracy_WindowBoundaries(t *testing.T) {
	history := map[string]float64{"mat-1": 10.0}

	atDouble := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 20)
	atDouble.MatchedMaterialID = strPtr("mat-1")
	atHalf := cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 5)
	atHalf.MatchedMaterialID = strPtr("mat-1")

	score, issues := scoreAccuracy([]models.StagingRow{atDouble, atHalf}, history, 100)

	// the window is inclusive at both ends
	assert.InDelta(t, 100.0, score, 0.001)
	assert.Empty(t, issues)

	belowHalf := cleanRow("PO-3", "Acme Industrial", "Steel Plate 3mm", 4, 4.99)
	belowHalf.MatchedMaterialID = strPtr("mat-1")

	score, _ = scoreAccuracy([]models.StagingRow{belowHalf}, history, 100)
	assert.InDelta(t, 0.0, score, 0.001)
}

func TestScoreAccuracy_NeutralWithoutHistory(t *testing.T) {
	row := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	row.MatchedMaterialID = strPtr("mat-1")

	score, issues := scoreAccuracy([]models.StagingRow{row}, nil, 100)

	assert.Equal(t, neutralAccuracy, score)
	assert.Empty(t, issues)
}

func TestScoreAccuracy_SampleCap(t *testing.T) {
	inRange := cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)
	inRange.MatchedMaterialID = strPtr("mat-1")
	wayOff := cleanRow("PO-2", "Acme Industrial", "Steel Plate 3mm", 4, 600)
	wayOff.MatchedMaterialID = strPtr("mat-1")

	history := map[string]float64{"mat-1": 15.0}

	// the cap stops sampling before the bad row
	score, _ := scoreAccuracy([]models.StagingRow{inRange, wayOff}, history, 1)

	assert.InDelta(t, 100.0, score, 0.001)
}

func TestGradeBoundaries(t *testing.T) {
	assert.Equal(t, "A", gradeFor(90))
	assert.Equal(t, "B", gradeFor(89.999))
	assert.Equal(t, "B", gradeFor(80))
	assert.Equal(t, "C", gradeFor(79.999))
	assert.Equal(t, "C", gradeFor(70))
	assert.Equal(t, "D", gradeFor(69.999))
	assert.Equal(t, "D", gradeFor(60))
	assert.Equal(t, "F", gradeFor(59.999))
}

func TestRecommendations_PrioritiesAndOrdering(t *testing.T) {
	dimensions := []models.DimensionScore{
		{Name: models.DimensionTimeliness, Score: 40},
		{Name: models.DimensionUniqueness, Score: 85},
		{Name: models.DimensionCompleteness, Score: 70},
		{Name: models.DimensionConsistency, Score: 75},
		{Name: models.DimensionValidity, Score: 95},
	}

	recommendations := buildRecommendations(dimensions)

	require.Len(t, recommendations, 4)
	assert.Equal(t, models.RecommendationPriorityHigh, recommendations[0].Priority)
	assert.Equal(t, models.DimensionCompleteness, recommendations[0].Dimension)
	assert.Equal(t, models.RecommendationPriorityMedium, recommendations[1].Priority)
	assert.Equal(t, models.RecommendationPriorityMedium, recommendations[2].Priority)
	assert.Equal(t, models.RecommendationPriorityLow, recommendations[3].Priority)
	assert.Equal(t, models.DimensionTimeliness, recommendations[3].Dimension)
}

func TestSafeDimension_PanicIsolatedToZero(t *testing.T) {
	scorer := newTestScorer()
	rows := []models.StagingRow{cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16)}

	dimension := scorer.safeDimension(models.DimensionAccuracy, weightAccuracy, rows, func() (float64, []string) {
		panic("boom")
	})

	assert.Equal(t, 0.0, dimension.Score)
	require.Len(t, dimension.Issues, 1)
	assert.Contains(t, dimension.Issues[0], "boom")
}

func TestScore_CompositeClamped(t *testing.T) {
	scorer := newTestScorer()

	// every dimension zeroes or degrades: composite must stay within [0,100]
	rows := []models.StagingRow{{}}
	report := scorer.Score("upload-1", rows, nil)

	assert.GreaterOrEqual(t, report.CompositeScore, 0.0)
	assert.LessOrEqual(t, report.CompositeScore, 100.0)
	assert.NotEmpty(t, report.Recommendations)
}

func TestScore_DegradingARowNeverRaisesADimension(t *testing.T) {
	scorer := newTestScorer()

	rows := []models.StagingRow{
		cleanRow("PO-1", "Acme Industrial", "Steel Plate 3mm", 4, 16),
		cleanRow("PO-2", "Zenith Logistics", "Copper Wire 2mm", 2, 11),
	}
	baseline := scorer.Score("upload-1", rows, nil)

	rows[1].UnitPrice = floatPtr(-5)
	degraded := scorer.Score("upload-1", rows, nil)

	assert.LessOrEqual(t,
		degraded.Dimension(models.DimensionValidity).Score,
		baseline.Dimension(models.DimensionValidity).Score)
	assert.LessOrEqual(t, degraded.CompositeScore, baseline.CompositeScore)
}
