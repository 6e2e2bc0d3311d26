package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bioage/internal/audit"
	"bioage/internal/config"
	"bioage/internal/db"
	"bioage/internal/domain"
	apihttp "bioage/internal/http"
	applog "bioage/internal/logger"
	"bioage/internal/model"
	"bioage/internal/repository"
	"bioage/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := applog.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var auditStore audit.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Warn("audit mirror disabled: db pool", zap.Error(err))
		} else {
			defer pool.Close()
			auditRepo := repository.NewPgAuditRepository(pool)
			if err := db.Ping(ctx, pool); err != nil {
				logger.Warn("audit mirror disabled: db ping", zap.Error(err))
			} else if err := auditRepo.EnsureSchema(ctx); err != nil {
				logger.Warn("audit mirror disabled: schema", zap.Error(err))
			} else {
				auditStore = auditRepo
			}
		}
	}

	auditLog, err := audit.Open(cfg.AuditLogPath, cfg.AuditQueueSize, auditStore, logger)
	if err != nil {
		logger.Fatal("open audit log", zap.Error(err))
	}
	defer func() {
		if err := auditLog.Close(); err != nil {
			logger.Warn("close audit log", zap.Error(err))
		}
	}()
	logger.Info("audit log ready", zap.String("path", cfg.AuditLogPath))

	scorer, fingerprint := loadScorer(cfg.ModelPath, logger)

	var (
		scoreCache  service.ScoreCache
		limiter     service.RateLimiter
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			redisClient = client
		}
		cancel()
	}
	if redisClient != nil && scorer != nil {
		scoreCache = service.NewRedisScoreCache(redisClient, fingerprint, cfg.ScoreCacheTTL(), logger)
	}
	if cfg.RateLimitPerMin > 0 {
		if redisClient != nil {
			limiter = service.NewRedisRateLimiter(redisClient, time.Minute, cfg.RateLimitPerMin, logger)
		} else {
			limiter = service.NewMemoryRateLimiter(time.Minute, cfg.RateLimitPerMin)
		}
	}

	predictor := service.NewHealthScorePredictor(scorer, scoreCache, logger)
	inferenceSvc := service.NewInferenceService(predictor, auditLog, logger)
	inferenceHandler := apihttp.NewInferenceHandler(logger, inferenceSvc, cfg.ServiceName)
	router := apihttp.NewRouter(logger, auditLog, cfg.CORSAllowOrigins, limiter, inferenceHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.Bool("model_loaded", scorer != nil),
		zap.Bool("score_cache", scoreCache != nil),
		zap.Bool("audit_mirror", auditStore != nil),
		zap.Bool("rate_limit", limiter != nil),
	)

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("listen", zap.Error(err))
		return
	}
	if err := runServer(ctx, server, ln, 10*time.Second, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

// loadScorer carga el artefacto una sola vez. Si falta o es inválido el
// servicio arranca igual y /predict responde 500.
func loadScorer(path string, logger *zap.Logger) (model.Scorer, string) {
	scorer, err := model.Load(path, domain.FeatureNames[:])
	if err != nil {
		logger.Warn("model artifact not loaded", zap.String("path", path), zap.Error(err))
		return nil, ""
	}
	fingerprint, err := model.Fingerprint(path)
	if err != nil {
		logger.Warn("model fingerprint failed", zap.Error(err))
	}
	logger.Info("model artifact loaded", zap.String("path", path), zap.String("fingerprint", fingerprint))
	return scorer, fingerprint
}
