package services

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/cache"
	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
	"github.com/smilelog/smilelog-backend/internal/platform/gcp"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
	"github.com/smilelog/smilelog-backend/internal/platform/openrouter"
)

// RecommendationCacheSize bounds the in-memory recommendation cache.
// Entries are evicted in insertion order once the cap is reached.
const RecommendationCacheSize = 100

// RecommendationService produces care recommendations for a completed
// assessment from its frontal image. Results are memoized two ways: on
// the assessment row and in a bounded in-process cache keyed by image.
type RecommendationService interface {
	ForAssessment(ctx context.Context, assessmentID uuid.UUID) (string, error)
}

type recommendationService struct {
	log         *logger.Logger
	assessments repos.AssessmentRepo
	blobs       gcp.BlobStore
	advisor     openrouter.Client
	memo        *cache.Bounded
}

func NewRecommendationService(
	baseLog *logger.Logger,
	assessments repos.AssessmentRepo,
	blobs gcp.BlobStore,
	advisor openrouter.Client,
) RecommendationService {
	return &recommendationService{
		log:         baseLog.With("service", "RecommendationService"),
		assessments: assessments,
		blobs:       blobs,
		advisor:     advisor,
		memo:        cache.NewBounded(RecommendationCacheSize),
	}
}

func (s *recommendationService) ForAssessment(ctx context.Context, assessmentID uuid.UUID) (string, error) {
	dbc := dbctx.Context{Ctx: ctx}
	a, err := s.assessments.GetByID(dbc, assessmentID)
	if err != nil {
		return "", err
	}
	if a.Status != domain.AssessmentStatusCompleted {
		return "", fmt.Errorf("assessment %s is not completed (status %s)", a.ID.String(), a.Status)
	}
	if a.AIRecommendations != nil && *a.AIRecommendations != "" {
		return *a.AIRecommendations, nil
	}

	// Prefer the processed frontal image; fall back to the raw upload.
	key := a.FrontalImageKey
	if a.ProcessedFrontalKey != nil && *a.ProcessedFrontalKey != "" {
		key = *a.ProcessedFrontalKey
	}
	if text, ok := s.memo.Get(key); ok {
		s.persist(dbc, a.ID, text)
		return text, nil
	}

	rc, err := s.blobs.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("download frontal image %q: %w", key, err)
	}
	img, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", fmt.Errorf("read frontal image %q: %w", key, err)
	}

	text, err := s.advisor.RecommendFromImage(ctx, img)
	if err != nil {
		return "", fmt.Errorf("generate recommendations: %w", err)
	}

	s.memo.Set(key, text)
	s.persist(dbc, a.ID, text)
	return text, nil
}

func (s *recommendationService) persist(dbc dbctx.Context, id uuid.UUID, text string) {
	if err := s.assessments.SetRecommendations(dbc, id, text); err != nil {
		s.log.Warn("could not persist recommendations", "assessment_id", id.String(), "error", err)
	}
}
