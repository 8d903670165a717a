package app

import (
	"fmt"

	"github.com/smilelog/smilelog-backend/internal/platform/gcp"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
	"github.com/smilelog/smilelog-backend/internal/platform/mlscore"
	"github.com/smilelog/smilelog-backend/internal/platform/openrouter"
	"github.com/smilelog/smilelog-backend/internal/services"
)

type Services struct {
	Auth           services.AuthService
	Assessment     services.AssessmentService
	Pipeline       services.PipelineService
	Record         services.RecordService
	Duty           services.DutyService
	Recommendation services.RecommendationService
	Runner         services.TaskRunner
}

func wireServices(log *logger.Logger, cfg Config, r Repos, blobs gcp.BlobStore) (Services, error) {
	log.Info("Wiring services...")

	scorer, err := mlscore.NewClient(log, mlscore.ConfigFromEnv())
	if err != nil {
		return Services{}, fmt.Errorf("init ml client: %w", err)
	}

	runner := services.NewTaskRunner(log, cfg.PipelineTimeout)
	pipeline := services.NewPipelineService(log, r.Assessment, r.Record, r.Duty, blobs, scorer)

	var recommendation services.RecommendationService
	advisor, err := openrouter.NewClient(log)
	if err != nil {
		// Recommendations are optional; the rest of the service runs
		// without the OpenRouter key.
		log.Warn("OpenRouter client unavailable, recommendations disabled", "error", err)
	} else {
		recommendation = services.NewRecommendationService(log, r.Assessment, blobs, advisor)
	}

	return Services{
		Auth:           services.NewAuthService(log, r.User, cfg.JWTSecretKey, cfg.AccessTokenTTL),
		Assessment:     services.NewAssessmentService(log, r.Assessment, r.Duty, blobs, pipeline, runner),
		Pipeline:       pipeline,
		Record:         services.NewRecordService(log, r.Record),
		Duty:           services.NewDutyService(log, r.Duty),
		Recommendation: recommendation,
		Runner:         runner,
	}, nil
}
