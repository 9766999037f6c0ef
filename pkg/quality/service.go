package quality

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/pkg/models"
)

// UploadRepository is the upload surface the service needs
type UploadRepository interface {
	Get(ctx context.Context, organizationID string, id string) (*models.Upload, error)
	SetQualityScore(ctx context.Context, organizationID string, id string, score float64) error
}

// StagingRowRepository loads an upload's rows
type StagingRowRepository interface {
	ListByUpload(ctx context.Context, uploadID string) ([]models.StagingRow, error)
}

// PriceHistory supplies historical price averages for the accuracy dimension
type PriceHistory interface {
	AveragePriceByMaterial(ctx context.Context, organizationID string, materialIDs []string) (map[string]float64, error)
}

// Service computes and persists upload quality reports
type Service struct {
	scorer  *Scorer
	uploads UploadRepository
	rows    StagingRowRepository
	history PriceHistory
	logger  ectologger.Logger
}

// NewService creates a new quality service
func NewService(scorer *Scorer, uploads UploadRepository, rows StagingRowRepository, history PriceHistory, logger ectologger.Logger) *Service {
	return &Service{
		scorer:  scorer,
		uploads: uploads,
		rows:    rows,
		history: history,
		logger:  logger,
	}
}

// ScoreUpload computes the quality report for an upload and persists its
// composite score
func (s *Service) ScoreUpload(ctx context.Context, organizationID string, uploadID string) (*models.QualityReport, error) {
	ctx, span := tracing.StartSpan(ctx, "quality.Service.ScoreUpload")
	defer span.End()

	if _, err := s.uploads.Get(ctx, organizationID, uploadID); err != nil {
		return nil, err
	}

	rows, err := s.rows.ListByUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	historicalPrices, err := s.loadHistory(ctx, organizationID, rows)
	if err != nil {
		// accuracy falls back to its neutral score without history
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to load price history, accuracy will use its neutral default")
		historicalPrices = nil
	}

	report := s.scorer.Score(uploadID, rows, historicalPrices)

	if err := s.uploads.SetQualityScore(ctx, organizationID, uploadID, report.CompositeScore); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"upload_id": uploadID,
		"composite": report.CompositeScore,
		"grade":     report.Grade,
	}).Info("Scored upload quality")

	return report, nil
}

func (s *Service) loadHistory(ctx context.Context, organizationID string, rows []models.StagingRow) (map[string]float64, error) {
	seen := map[string]bool{}
	var materialIDs []string
	for i := range rows {
		if id := rows[i].MatchedMaterialID; id != nil && !seen[*id] {
			seen[*id] = true
			materialIDs = append(materialIDs, *id)
		}
	}
	if len(materialIDs) == 0 {
		return nil, nil
	}
	return s.history.AveragePriceByMaterial(ctx, organizationID, materialIDs)
}
