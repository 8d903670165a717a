package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/smilelog/smilelog-backend/internal/db"
	apphttp "github.com/smilelog/smilelog-backend/internal/http"
	"github.com/smilelog/smilelog-backend/internal/platform/gcp"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	blobs, err := gcp.NewBucketStore(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init bucket store: %w", err)
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(log, cfg, reposet, blobs)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset, blobs)
	authMW := wireMiddleware(log, serviceset)
	router := apphttp.NewRouter(apphttp.RouterConfig{
		Log:               log,
		AuthHandler:       handlerset.Auth,
		AuthMiddleware:    authMW,
		AssessmentHandler: handlerset.Assessment,
		ImageHandler:      handlerset.Image,
		RecordHandler:     handlerset.Record,
		DutyHandler:       handlerset.Duty,
		HealthHandler:     handlerset.Health,
	})

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
	}, nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

// Close drains in-flight background tasks before the process exits.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Services.Runner != nil {
		a.Services.Runner.Shutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
