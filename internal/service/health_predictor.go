package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"bioage/internal/domain"
	"bioage/internal/model"
)

// ErrModelUnavailable indica que el artefacto de scoring no se cargó al arrancar.
var ErrModelUnavailable = errors.New("model unavailable")

// HealthScorePredictor envuelve el artefacto cargado una sola vez al arrancar.
type HealthScorePredictor struct {
	scorer model.Scorer
	cache  ScoreCache
	logger *zap.Logger
}

// NewHealthScorePredictor crea el predictor. Un scorer nil deja el predictor
// en estado no disponible; nunca se intenta recargar.
func NewHealthScorePredictor(scorer model.Scorer, cache ScoreCache, logger *zap.Logger) *HealthScorePredictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthScorePredictor{
		scorer: scorer,
		cache:  cache,
		logger: logger,
	}
}

// Available informa si hay un artefacto cargado.
func (p *HealthScorePredictor) Available() bool {
	return p != nil && p.scorer != nil
}

// Predict calcula el health score de un FeatureVector.
func (p *HealthScorePredictor) Predict(ctx context.Context, v domain.FeatureVector) (float64, error) {
	if !p.Available() {
		return 0, ErrModelUnavailable
	}

	if p.cache != nil {
		if score, ok := p.cache.Get(ctx, v); ok {
			return score, nil
		}
	}

	score, err := p.score(v)
	if err != nil {
		return 0, err
	}

	if p.cache != nil {
		p.cache.Set(ctx, v, score)
	}
	return score, nil
}

func (p *HealthScorePredictor) score(v domain.FeatureVector) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("scoring artifact panicked", zap.Any("panic", r))
			err = fmt.Errorf("scoring failed: %v", r)
		}
	}()

	score, err = p.scorer.Score(v.Slice())
	if err != nil {
		return 0, fmt.Errorf("scoring failed: %w", err)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, model.ErrNonFiniteScore
	}
	return score, nil
}
