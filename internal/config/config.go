package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort         string   `env:"HTTP_PORT" envDefault:"8000"`
	ServiceName      string   `env:"SERVICE_NAME" envDefault:"Biological Age Predictor API"`
	ModelPath        string   `env:"MODEL_PATH" envDefault:"models/health_model.json"`
	AuditLogPath     string   `env:"AUDIT_LOG_PATH" envDefault:"backend_logs.txt"`
	AuditQueueSize   int      `env:"AUDIT_QUEUE_SIZE" envDefault:"1024"`
	LogLevel         string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile          string   `env:"LOG_FILE"`
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
	DatabaseURL      string   `env:"DATABASE_URL"`
	RedisAddr        string   `env:"REDIS_ADDR"`
	RedisPassword    string   `env:"REDIS_PASSWORD"`
	RedisDB          int      `env:"REDIS_DB" envDefault:"0"`
	ScoreCacheTTLSec int      `env:"SCORE_CACHE_TTL_SECONDS" envDefault:"3600"`
	RateLimitPerMin  int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"0"`
}

// ScoreCacheTTL devuelve el TTL del cache de scores.
func (c *Config) ScoreCacheTTL() time.Duration {
	return time.Duration(c.ScoreCacheTTLSec) * time.Second
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
