package models

import "time"

// Quality dimension names
const (
	DimensionCompleteness = "completeness"
	DimensionConsistency  = "consistency"
	DimensionValidity     = "validity"
	DimensionTimeliness   = "timeliness"
	DimensionUniqueness   = "uniqueness"
	DimensionAccuracy     = "accuracy"
)

// DimensionScore is one scored quality dimension with the issues found while
// computing it
type DimensionScore struct {
	Name   string   `json:"name"`
	Score  float64  `json:"score"` // 0-100
	Weight float64  `json:"weight"`
	Issues []string `json:"issues,omitempty"`
}

// RecommendationPriority ranks recommendations for reviewers
type RecommendationPriority string

const (
	RecommendationPriorityHigh   RecommendationPriority = "high"
	RecommendationPriorityMedium RecommendationPriority = "medium"
	RecommendationPriorityLow    RecommendationPriority = "low"
)

// Recommendation is one actionable finding derived from a dimension score
type Recommendation struct {
	Priority  RecommendationPriority `json:"priority"`
	Dimension string                 `json:"dimension"`
	Message   string                 `json:"message"`
}

// QualityReport is the derived quality assessment of an upload's staging
// rows. Recomputed on demand; the composite score is persisted back onto the
// Upload for quick reads.
type QualityReport struct {
	UploadID        string           `json:"upload_id"`
	RecordCount     int              `json:"record_count"`
	Dimensions      []DimensionScore `json:"dimensions"`
	CompositeScore  float64          `json:"composite_score"` // 0-100
	Grade           string           `json:"grade"`           // A-F
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Dimension returns the named dimension score, if present
func (r *QualityReport) Dimension(name string) *DimensionScore {
	for i := range r.Dimensions {
		if r.Dimensions[i].Name == name {
			return &r.Dimensions[i]
		}
	}
	return nil
}
