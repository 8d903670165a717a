package app

import (
	httpH "github.com/smilelog/smilelog-backend/internal/http/handlers"
	httpMW "github.com/smilelog/smilelog-backend/internal/http/middleware"
	"github.com/smilelog/smilelog-backend/internal/platform/gcp"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

type Handlers struct {
	Auth       *httpH.AuthHandler
	Assessment *httpH.AssessmentHandler
	Image      *httpH.ImageHandler
	Record     *httpH.RecordHandler
	Duty       *httpH.DutyHandler
	Health     *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, s Services, blobs gcp.BlobStore) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:       httpH.NewAuthHandler(s.Auth),
		Assessment: httpH.NewAssessmentHandler(log, s.Assessment, s.Recommendation),
		Image:      httpH.NewImageHandler(log, blobs),
		Record:     httpH.NewRecordHandler(log, s.Record),
		Duty:       httpH.NewDutyHandler(log, s.Duty),
		Health:     httpH.NewHealthHandler(),
	}
}

func wireMiddleware(log *logger.Logger, s Services) *httpMW.AuthMiddleware {
	return httpMW.NewAuthMiddleware(log, s.Auth)
}
