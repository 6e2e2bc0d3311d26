package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"bioage/internal/audit"
	"bioage/internal/domain"
)

// AuditSink es el único punto de escritura hacia el audit log.
type AuditSink interface {
	Append(ctx context.Context, e audit.Entry) error
}

// ServerError envuelve cualquier fallo inesperado posterior a la validación.
type ServerError struct {
	Err error
}

func (e *ServerError) Error() string {
	if e == nil || e.Err == nil {
		return "internal error"
	}
	return e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// maxLoggedBody limita cuánto del body crudo se copia al audit log.
const maxLoggedBody = 4096

// InferenceService compone validación, features, scoring y edad biológica.
type InferenceService struct {
	predictor *HealthScorePredictor
	audit     AuditSink
	logger    *zap.Logger
}

func NewInferenceService(predictor *HealthScorePredictor, sink AuditSink, logger *zap.Logger) *InferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InferenceService{
		predictor: predictor,
		audit:     sink,
		logger:    logger,
	}
}

// ModelAvailable informa si el artefacto de scoring está cargado.
func (s *InferenceService) ModelAvailable() bool {
	return s != nil && s.predictor.Available()
}

// Predict ejecuta el pipeline completo dejando traza de cada etapa.
func (s *InferenceService) Predict(ctx context.Context, requestID string, body []byte) (domain.BiologicalAgeResult, error) {
	trace := s.tracer(ctx, requestID)
	trace(audit.StageReceived, "--- [REQUEST RECEIVED] ---", nil)

	if !s.ModelAvailable() {
		trace(audit.StageFailed, "Error: model not loaded, scoring artifact is missing", nil)
		trace(audit.StageEnd, "--- [VALIDATION END (ERROR)] ---", nil)
		return domain.BiologicalAgeResult{}, ErrModelUnavailable
	}

	trace(audit.StageRawBody, "1. Received raw data: "+truncate(string(body), maxLoggedBody), nil)

	record, err := ParseHealthRecord(body)
	if err != nil {
		trace(audit.StageRejected, "Validation Error: "+err.Error(), nil)
		trace(audit.StageEnd, "--- [VALIDATION END (ERROR)] ---", nil)
		return domain.BiologicalAgeResult{}, err
	}

	features := AssembleFeatures(record)
	trace(audit.StageFeatures, "2. Formatted model input: "+formatFeatures(features), &features)

	score, err := s.predictor.Predict(ctx, features)
	if err != nil {
		err = classifyPredictError(err)
		trace(audit.StageFailed, "Server Error: "+err.Error(), nil)
		trace(audit.StageEnd, "--- [VALIDATION END (ERROR)] ---", nil)
		return domain.BiologicalAgeResult{}, err
	}
	trace(audit.StageScored, "3. Predicted health score: "+formatFloat(score), nil)

	bioAge := BiologicalAge(record.Age, score)
	trace(audit.StageAgeResult, "4. Calculated biological age: "+formatFloat(bioAge), nil)

	result := buildResult(record.Age, score, bioAge)
	trace(audit.StageResponse, "5. Sending result: "+formatResult(result), nil)
	trace(audit.StageEnd, "--- [VALIDATION END] ---", nil)
	return result, nil
}

// RejectPredict deja la traza completa de un /predict rechazado antes de
// llegar al pipeline (body ilegible, demasiado grande o rate limit).
func (s *InferenceService) RejectPredict(ctx context.Context, requestID, reason string) {
	trace := s.tracer(ctx, requestID)
	trace(audit.StageReceived, "--- [REQUEST RECEIVED] ---", nil)
	trace(audit.StageRejected, "Request Error: "+reason, nil)
	trace(audit.StageEnd, "--- [VALIDATION END (ERROR)] ---", nil)
}

// Simulate hace el mismo cálculo que Predict sin traza por etapa.
func (s *InferenceService) Simulate(ctx context.Context, body []byte) (domain.SimulationResult, error) {
	if !s.ModelAvailable() {
		return domain.SimulationResult{}, ErrModelUnavailable
	}

	record, err := ParseHealthRecord(body)
	if err != nil {
		return domain.SimulationResult{}, err
	}

	score, err := s.predictor.Predict(ctx, AssembleFeatures(record))
	if err != nil {
		return domain.SimulationResult{}, classifyPredictError(err)
	}

	bioAge := BiologicalAge(record.Age, score)
	return buildResult(record.Age, score, bioAge).Simulation(), nil
}

// ParseHealthRecord decodifica y valida un body JSON.
func ParseHealthRecord(body []byte) (domain.HealthRecord, error) {
	raw, err := DecodeHealthInput(body)
	if err != nil {
		return domain.HealthRecord{}, err
	}
	return ValidateHealthRecord(raw)
}

func buildResult(age int, score, bioAge float64) domain.BiologicalAgeResult {
	return domain.BiologicalAgeResult{
		ChronologicalAge: age,
		HealthScore:      round2(score),
		BiologicalAge:    round2(bioAge),
		AgeAcceleration:  round2(bioAge - float64(age)),
	}
}

func classifyPredictError(err error) error {
	if errors.Is(err, ErrModelUnavailable) {
		return err
	}
	return &ServerError{Err: err}
}

func (s *InferenceService) tracer(ctx context.Context, requestID string) func(audit.Stage, string, *domain.FeatureVector) {
	return func(stage audit.Stage, msg string, features *domain.FeatureVector) {
		if s.audit == nil {
			return
		}
		err := s.audit.Append(ctx, audit.Entry{
			RequestID: requestID,
			Stage:     stage,
			Message:   msg,
			Features:  features,
		})
		if err != nil {
			s.logger.Warn("audit append failed",
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.String("stage", string(stage)),
			)
		}
	}
}

func formatFeatures(v domain.FeatureVector) string {
	parts := make([]string, len(v))
	for i, name := range domain.FeatureNames {
		parts[i] = name + "=" + formatFloat(v[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatResult(r domain.BiologicalAgeResult) string {
	return fmt.Sprintf(`{"chronological_age": %d, "health_score": %s, "biological_age": %s, "age_acceleration": %s}`,
		r.ChronologicalAge, formatFloat(r.HealthScore), formatFloat(r.BiologicalAge), formatFloat(r.AgeAcceleration))
}

// truncate corta en un límite de runa y reemplaza bytes que no son UTF-8 válido.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...(%d bytes truncated)", s[:cut], len(s)-cut)
}
