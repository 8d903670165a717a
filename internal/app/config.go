package app

import (
	"time"

	"github.com/smilelog/smilelog-backend/internal/platform/envutil"
)

type Config struct {
	Port           string
	JWTSecretKey   string
	AccessTokenTTL time.Duration

	// Each background pipeline run is bounded by this deadline.
	PipelineTimeout time.Duration
}

func LoadConfig() Config {
	return Config{
		Port:            envutil.String("PORT", "8080"),
		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", "defaultsecret"),
		AccessTokenTTL:  envutil.Seconds("ACCESS_TOKEN_TTL", time.Hour),
		PipelineTimeout: envutil.Seconds("PIPELINE_TIMEOUT_SECONDS", 5*time.Minute),
	}
}
