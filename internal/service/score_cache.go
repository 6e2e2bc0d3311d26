package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bioage/internal/domain"
)

// ScoreCache guarda health scores por FeatureVector. El scorer es
// determinista, así que un hit equivale a volver a puntuar.
type ScoreCache interface {
	Get(ctx context.Context, v domain.FeatureVector) (float64, bool)
	Set(ctx context.Context, v domain.FeatureVector, score float64)
}

type redisStringStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisScoreCache struct {
	client  redisStringStore
	ttl     time.Duration
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisScoreCache crea un cache de scores sobre Redis. namespace identifica
// el artefacto cargado para no mezclar scores de modelos distintos. Los errores
// de Redis no bloquean el scoring: se tratan como miss.
func NewRedisScoreCache(client *redis.Client, namespace string, ttl time.Duration, logger *zap.Logger) ScoreCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisScoreCache{
		client:  client,
		ttl:     ttl,
		prefix:  "bioage:score:" + namespace + ":",
		timeout: 200 * time.Millisecond,
		logger:  logger,
	}
}

func (c *redisScoreCache) Get(ctx context.Context, v domain.FeatureVector) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	val, err := c.client.Get(ctx, c.key(v)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("score cache get failed", zap.Error(err))
		}
		return 0, false
	}
	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		c.logger.Warn("score cache holds invalid value", zap.String("value", val))
		return 0, false
	}
	return score, true
}

func (c *redisScoreCache) Set(ctx context.Context, v domain.FeatureVector, score float64) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	val := strconv.FormatFloat(score, 'g', -1, 64)
	if err := c.client.Set(ctx, c.key(v), val, c.ttl).Err(); err != nil {
		c.logger.Warn("score cache set failed", zap.Error(err))
	}
}

func (c *redisScoreCache) key(v domain.FeatureVector) string {
	return c.prefix + FeatureVectorKey(v)
}

// FeatureVectorKey devuelve un hash estable del vector.
func FeatureVectorKey(v domain.FeatureVector) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}
