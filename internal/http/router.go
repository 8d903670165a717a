package http

import (
	"github.com/gin-gonic/gin"

	"github.com/smilelog/smilelog-backend/internal/domain"
	httpH "github.com/smilelog/smilelog-backend/internal/http/handlers"
	httpMW "github.com/smilelog/smilelog-backend/internal/http/middleware"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware

	AssessmentHandler *httpH.AssessmentHandler
	ImageHandler      *httpH.ImageHandler
	RecordHandler     *httpH.RecordHandler
	DutyHandler       *httpH.DutyHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Assessments
		if cfg.AssessmentHandler != nil {
			protected.POST("/assessments", cfg.AssessmentHandler.Create)
			protected.GET("/assessments/:id", cfg.AssessmentHandler.GetByID)
			protected.GET("/assessments/:id/recommendations", cfg.AssessmentHandler.Recommendations)
			protected.GET("/patients/:id/assessments", cfg.AssessmentHandler.ListForPatient)
		}

		// Stored images
		if cfg.ImageHandler != nil {
			protected.GET("/images/*key", cfg.ImageHandler.Serve)
		}

		// Hygiene time series
		if cfg.RecordHandler != nil {
			protected.GET("/patients/:id/record", cfg.RecordHandler.GetSeries)
		}

		// Duties
		if cfg.DutyHandler != nil {
			protected.GET("/duties", cfg.DutyHandler.ListToday)
			protected.GET("/duties/:id", cfg.DutyHandler.GetByID)
			protected.POST("/duties/:id/complete", cfg.DutyHandler.Complete)
			if cfg.AuthMiddleware != nil {
				protected.POST("/duties/:id/verify",
					cfg.AuthMiddleware.RequireRole(domain.RoleFacility, domain.RoleDentist),
					cfg.DutyHandler.Verify)
			} else {
				protected.POST("/duties/:id/verify", cfg.DutyHandler.Verify)
			}
		}
	}

	return r
}
