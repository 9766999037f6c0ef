// Package quality assesses the data quality of an upload's staging rows
// across six weighted dimensions and derives a graded report.
package quality

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/openprocure/fern/pkg/models"
	"github.com/openprocure/fern/pkg/normalizers"
)

// Dimension weights. They sum to 1.0; the composite is the weighted sum of
// the dimension scores.
const (
	weightCompleteness = 0.25
	weightConsistency  = 0.20
	weightValidity     = 0.20
	weightTimeliness   = 0.15
	weightUniqueness   = 0.10
	weightAccuracy     = 0.10
)

// neutralAccuracy is used when no price history exists to compare against
const neutralAccuracy = 75.0

// Accuracy bounds. A sampled price outside [low*avg, high*avg] of the
// material's historical average counts as an outlier.
const (
	priceOutlierLow  = 0.5
	priceOutlierHigh = 2.0
)

// Consistency bounds. A unit price outside [low*avg, high*avg] of the
// upload's own average is an internal outlier; more than maxCurrencies
// distinct currencies in one upload is suspect.
const (
	internalOutlierLow  = 0.1
	internalOutlierHigh = 10.0
	maxCurrencies       = 3
)

// optionalFieldBonus is the extra completeness credit for populated
// optional-but-valuable fields
const optionalFieldBonus = 5.0

// spanBonus rewards uploads whose purchase dates cover more than 30 days
const spanBonus = 5.0

// Scorer computes quality reports. All dimension computations are pure over
// the rows; historical averages for the accuracy dimension are supplied by
// the caller.
type Scorer struct {
	sampleSize int
	now        func() time.Time
}

// NewScorer creates a scorer that samples at most sampleSize rows for the
// accuracy dimension
func NewScorer(sampleSize int) *Scorer {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	return &Scorer{
		sampleSize: sampleSize,
		now:        time.Now,
	}
}

// Score builds the full quality report for an upload's rows. A panic inside
// any single dimension zeroes that dimension instead of failing the report.
func (s *Scorer) Score(uploadID string, rows []models.StagingRow, historicalPrices map[string]float64) *models.QualityReport {
	dimensions := []models.DimensionScore{
		s.safeDimension(models.DimensionCompleteness, weightCompleteness, rows, func() (float64, []string) {
			return scoreCompleteness(rows)
		}),
		s.safeDimension(models.DimensionConsistency, weightConsistency, rows, func() (float64, []string) {
			return scoreConsistency(rows)
		}),
		s.safeDimension(models.DimensionValidity, weightValidity, rows, func() (float64, []string) {
			return scoreValidity(rows, s.now().UTC())
		}),
		s.safeDimension(models.DimensionTimeliness, weightTimeliness, rows, func() (float64, []string) {
			return scoreTimeliness(rows, s.now().UTC())
		}),
		s.safeDimension(models.DimensionUniqueness, weightUniqueness, rows, func() (float64, []string) {
			return scoreUniqueness(rows)
		}),
		s.safeDimension(models.DimensionAccuracy, weightAccuracy, rows, func() (float64, []string) {
			return scoreAccuracy(rows, historicalPrices, s.sampleSize)
		}),
	}

	composite := 0.0
	for _, d := range dimensions {
		composite += d.Score * d.Weight
	}
	composite = clamp(composite, 0, 100)

	return &models.QualityReport{
		UploadID:        uploadID,
		RecordCount:     len(rows),
		Dimensions:      dimensions,
		CompositeScore:  composite,
		Grade:           gradeFor(composite),
		Recommendations: buildRecommendations(dimensions),
		GeneratedAt:     s.now().UTC(),
	}
}

// safeDimension isolates a dimension computation so one bad dimension cannot
// take down the whole report
func (s *Scorer) safeDimension(name string, weight float64, rows []models.StagingRow, compute func() (float64, []string)) (dimension models.DimensionScore) {
	dimension = models.DimensionScore{Name: name, Weight: weight}

	defer func() {
		if r := recover(); r != nil {
			dimension.Score = 0
			dimension.Issues = []string{fmt.Sprintf("dimension computation failed: %v", r)}
		}
	}()

	if len(rows) == 0 {
		dimension.Score = 100
		return dimension
	}

	score, issues := compute()
	dimension.Score = clamp(score, 0, 100)
	dimension.Issues = issues
	return dimension
}

// gradeFor maps a composite score to a letter grade
func gradeFor(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// buildRecommendations derives prioritized findings from the dimension scores
func buildRecommendations(dimensions []models.DimensionScore) []models.Recommendation {
	var recommendations []models.Recommendation

	add := func(priority models.RecommendationPriority, dimension, message string) {
		recommendations = append(recommendations, models.Recommendation{
			Priority:  priority,
			Dimension: dimension,
			Message:   message,
		})
	}

	for _, d := range dimensions {
		switch d.Name {
		case models.DimensionCompleteness:
			if d.Score < 80 {
				add(models.RecommendationPriorityHigh, d.Name, "Many rows are missing required fields; review the source file's column mapping")
			}
		case models.DimensionValidity:
			if d.Score < 80 {
				add(models.RecommendationPriorityHigh, d.Name, "A significant share of rows carry out-of-range values; validate quantities, prices, and dates at the source")
			}
		case models.DimensionConsistency:
			if d.Score < 80 {
				add(models.RecommendationPriorityMedium, d.Name, "Rows contradict each other; check delivery dates against purchase dates and look for extreme unit prices")
			}
		case models.DimensionUniqueness:
			if d.Score < 90 {
				add(models.RecommendationPriorityMedium, d.Name, "Duplicate purchase order numbers detected; deduplicate the export before uploading")
			}
		case models.DimensionTimeliness:
			if d.Score < 60 {
				add(models.RecommendationPriorityLow, d.Name, "Most records are old; consider uploading more recent purchasing data")
			}
		}
	}

	priorityRank := map[models.RecommendationPriority]int{
		models.RecommendationPriorityHigh:   0,
		models.RecommendationPriorityMedium: 1,
		models.RecommendationPriorityLow:    2,
	}
	sort.SliceStable(recommendations, func(i, j int) bool {
		return priorityRank[recommendations[i].Priority] < priorityRank[recommendations[j].Priority]
	})

	return recommendations
}

// scoreCompleteness measures how many of the required fields are populated
// across all rows, with a small bonus for populated optional fields
func scoreCompleteness(rows []models.StagingRow) (float64, []string) {
	type field struct {
		name    string
		present func(*models.StagingRow) bool
	}
	fields := []field{
		{"po_number", func(r *models.StagingRow) bool { return notEmpty(r.PONumber) }},
		{"supplier", func(r *models.StagingRow) bool { return notEmpty(r.SupplierName) || notEmpty(r.SupplierCode) }},
		{"material", func(r *models.StagingRow) bool { return notEmpty(r.MaterialDescription) || notEmpty(r.MaterialCode) }},
		{"quantity", func(r *models.StagingRow) bool { return r.Quantity != nil }},
		{"unit_price", func(r *models.StagingRow) bool { return r.UnitPrice != nil }},
	}
	optional := []func(*models.StagingRow) bool{
		func(r *models.StagingRow) bool { return r.TotalPrice != nil },
		func(r *models.StagingRow) bool { return notEmpty(r.Currency) },
		func(r *models.StagingRow) bool { return r.PurchaseDate != nil },
		func(r *models.StagingRow) bool { return r.DeliveryDate != nil },
	}

	populated := 0
	optionalPopulated := 0
	missing := map[string]int{}
	for i := range rows {
		for _, f := range fields {
			if f.present(&rows[i]) {
				populated++
			} else {
				missing[f.name]++
			}
		}
		for _, present := range optional {
			if present(&rows[i]) {
				optionalPopulated++
			}
		}
	}

	var issues []string
	for _, f := range fields {
		if count := missing[f.name]; count > 0 {
			issues = append(issues, fmt.Sprintf("%s missing in %d of %d rows", f.name, count, len(rows)))
		}
	}

	total := len(rows) * len(fields)
	score := float64(populated) / float64(total) * 100
	score += float64(optionalPopulated) / float64(len(rows)*len(optional)) * optionalFieldBonus
	return clamp(score, 0, 100), issues
}

// scoreConsistency starts at 100 and deducts for internal contradictions:
// deliveries dated before their purchase, unit prices far outside the
// upload's own average, and too many currencies in one upload
func scoreConsistency(rows []models.StagingRow) (float64, []string) {
	score := 100.0
	var issues []string

	dateViolations := 0
	for i := range rows {
		r := &rows[i]
		if r.PurchaseDate != nil && r.DeliveryDate != nil && r.DeliveryDate.Before(*r.PurchaseDate) {
			dateViolations++
		}
	}
	if dateViolations > 0 {
		score -= 40 * float64(dateViolations) / float64(len(rows))
		issues = append(issues, fmt.Sprintf("%d rows have a delivery date before the purchase date", dateViolations))
	}

	priced := 0
	sum := 0.0
	for i := range rows {
		if p := rows[i].UnitPrice; p != nil && *p > 0 {
			priced++
			sum += *p
		}
	}
	if priced > 0 {
		average := sum / float64(priced)
		outliers := 0
		for i := range rows {
			p := rows[i].UnitPrice
			if p == nil || *p <= 0 {
				continue
			}
			if *p > internalOutlierHigh*average || *p < internalOutlierLow*average {
				outliers++
			}
		}
		if outliers > 0 {
			score -= 40 * float64(outliers) / float64(len(rows))
			issues = append(issues, fmt.Sprintf("%d unit prices are extreme outliers against the upload average", outliers))
		}
	}

	currencies := map[string]bool{}
	for i := range rows {
		if notEmpty(rows[i].Currency) {
			currencies[*rows[i].Currency] = true
		}
	}
	if len(currencies) > maxCurrencies {
		score -= 10 * float64(len(currencies)-maxCurrencies)
		issues = append(issues, fmt.Sprintf("%d distinct currencies in one upload", len(currencies)))
	}

	return clamp(score, 0, 100), issues
}

// scoreValidity checks that values are in plausible ranges
func scoreValidity(rows []models.StagingRow, now time.Time) (float64, []string) {
	earliest := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	valid := 0
	var issues []string
	countIssue := map[string]int{}

	for i := range rows {
		r := &rows[i]
		rowValid := true

		if r.Quantity != nil && *r.Quantity <= 0 {
			countIssue["non-positive quantity"]++
			rowValid = false
		}
		if r.UnitPrice != nil && *r.UnitPrice < 0 {
			countIssue["negative unit price"]++
			rowValid = false
		}
		if r.TotalPrice != nil && *r.TotalPrice < 0 {
			countIssue["negative total price"]++
			rowValid = false
		}
		if r.PurchaseDate != nil && (r.PurchaseDate.After(now) || r.PurchaseDate.Before(earliest)) {
			countIssue["purchase date out of range"]++
			rowValid = false
		}
		if r.Currency != nil && len(*r.Currency) != 3 {
			countIssue["malformed currency code"]++
			rowValid = false
		}

		if rowValid {
			valid++
		}
	}

	for issue, count := range countIssue {
		issues = append(issues, fmt.Sprintf("%s in %d rows", issue, count))
	}
	sort.Strings(issues)

	return float64(valid) / float64(len(rows)) * 100, issues
}

// scoreTimeliness rates how old the most-recent purchase date is, with a
// small bonus when the dates span more than 30 days
func scoreTimeliness(rows []models.StagingRow, now time.Time) (float64, []string) {
	var newest, oldest *time.Time
	for i := range rows {
		d := rows[i].PurchaseDate
		if d == nil {
			continue
		}
		if newest == nil || d.After(*newest) {
			newest = d
		}
		if oldest == nil || d.Before(*oldest) {
			oldest = d
		}
	}
	if newest == nil {
		return 50, []string{"no purchase dates to assess"}
	}

	age := now.Sub(*newest)
	var score float64
	switch {
	case age <= 30*24*time.Hour:
		score = 100
	case age <= 90*24*time.Hour:
		score = 80
	case age <= 180*24*time.Hour:
		score = 60
	case age <= 365*24*time.Hour:
		score = 40
	default:
		score = 20
	}

	var issues []string
	if score <= 40 {
		issues = append(issues, fmt.Sprintf("most recent purchase is %d days old", int(age.Hours()/24)))
	}

	if newest.Sub(*oldest) > 30*24*time.Hour {
		score += spanBonus
	}

	return clamp(score, 0, 100), issues
}

// scoreUniqueness penalizes duplicate purchase order numbers at 2 points per
// 1% duplicate rate
func scoreUniqueness(rows []models.StagingRow) (float64, []string) {
	seen := map[string]bool{}
	withPO := 0
	duplicates := 0
	for i := range rows {
		po := rows[i].PONumber
		if po == nil || *po == "" {
			continue
		}
		withPO++
		key := normalizers.NormalizePONumber(*po)
		if seen[key] {
			duplicates++
		}
		seen[key] = true
	}
	if withPO == 0 {
		return 100, nil
	}

	var issues []string
	if duplicates > 0 {
		issues = append(issues, fmt.Sprintf("%d of %d po_numbers are duplicates", duplicates, withPO))
	}

	duplicateRate := float64(duplicates) / float64(withPO) * 100
	return clamp(100-2*duplicateRate, 0, 100), issues
}

// scoreAccuracy compares a sample of row prices against historical averages
// per material; a price outside half to double the average is an outlier.
// With no history to compare against the dimension is neutral rather than
// punishing first uploads.
func scoreAccuracy(rows []models.StagingRow, historicalPrices map[string]float64, sampleSize int) (float64, []string) {
	checked, outliers := 0, 0
	for i := range rows {
		if checked >= sampleSize {
			break
		}
		r := &rows[i]
		if r.MatchedMaterialID == nil || r.UnitPrice == nil {
			continue
		}
		average, ok := historicalPrices[*r.MatchedMaterialID]
		if !ok || average <= 0 {
			continue
		}
		checked++
		if *r.UnitPrice < priceOutlierLow*average || *r.UnitPrice > priceOutlierHigh*average {
			outliers++
		}
	}

	if checked == 0 {
		return neutralAccuracy, nil
	}

	var issues []string
	if outliers > 0 {
		issues = append(issues, fmt.Sprintf("%d of %d sampled prices fall outside %.1fx-%.1fx of their historical average", outliers, checked, priceOutlierLow, priceOutlierHigh))
	}

	outlierRate := float64(outliers) / float64(checked)
	return (1 - outlierRate) * 100, issues
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func notEmpty(s *string) bool {
	return s != nil && *s != ""
}

