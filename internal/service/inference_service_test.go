package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"bioage/internal/audit"
	"bioage/internal/domain"
)

type stubScorer struct {
	mu    sync.Mutex
	score float64
	err   error
	calls int
	last  []float64
	panic bool
}

func (s *stubScorer) Score(features []float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = append([]float64(nil), features...)
	if s.panic {
		panic("tree index out of range")
	}
	return s.score, s.err
}

type mockAuditSink struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (m *mockAuditSink) Append(_ context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *mockAuditSink) stages() []audit.Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Stage, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Stage
	}
	return out
}

func healthBody(t *testing.T, overrides map[string]any, drop ...string) []byte {
	t.Helper()
	body := map[string]any{
		"age":            20,
		"sleep_hours":    8,
		"sleep_quality":  2,
		"smoker":         0,
		"alcohol":        0,
		"bmi":            22,
		"resting_hr":     60,
		"systolic_bp":    110,
		"diastolic_bp":   70,
		"cholesterol":    165,
		"daily_steps":    12000,
		"family_history": 0,
		"water_intake":   3.0,
	}
	for k, v := range overrides {
		body[k] = v
	}
	for _, k := range drop {
		delete(body, k)
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func newTestService(scorer *stubScorer, sink *mockAuditSink) *InferenceService {
	var predictor *HealthScorePredictor
	if scorer != nil {
		predictor = NewHealthScorePredictor(scorer, nil, nil)
	} else {
		predictor = NewHealthScorePredictor(nil, nil, nil)
	}
	return NewInferenceService(predictor, sink, nil)
}

func TestInferenceServicePredict_Scenarios(t *testing.T) {
	cases := []struct {
		name    string
		age     int
		score   float64
		wantBio float64
		wantAcc float64
	}{
		{name: "young healthy clamps low", age: 20, score: 8, wantBio: 19, wantAcc: -1},
		{name: "neutral score", age: 30, score: 5, wantBio: 30, wantAcc: 0},
		{name: "older unhealthy within bracket", age: 70, score: 2, wantBio: 76, wantAcc: 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scorer := &stubScorer{score: tc.score}
			svc := newTestService(scorer, &mockAuditSink{})

			got, err := svc.Predict(context.Background(), "r1", healthBody(t, map[string]any{"age": tc.age}))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got.ChronologicalAge != tc.age {
				t.Fatalf("expected chronological age echo %d, got %d", tc.age, got.ChronologicalAge)
			}
			if got.HealthScore != tc.score || got.BiologicalAge != tc.wantBio || got.AgeAcceleration != tc.wantAcc {
				t.Fatalf("unexpected result %+v", got)
			}
		})
	}
}

func TestInferenceServicePredict_RoundsToTwoDecimals(t *testing.T) {
	scorer := &stubScorer{score: 5.123456}
	svc := newTestService(scorer, &mockAuditSink{})

	got, err := svc.Predict(context.Background(), "r1", healthBody(t, map[string]any{"age": 40}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.HealthScore != 5.12 || got.BiologicalAge != 39.75 || got.AgeAcceleration != -0.25 {
		t.Fatalf("unexpected rounding %+v", got)
	}
}

func TestInferenceServicePredict_ScoreIsNotClamped(t *testing.T) {
	scorer := &stubScorer{score: 14.5}
	svc := newTestService(scorer, &mockAuditSink{})

	got, err := svc.Predict(context.Background(), "r1", healthBody(t, map[string]any{"age": 45}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.HealthScore != 14.5 {
		t.Fatalf("expected raw score 14.5, got %v", got.HealthScore)
	}
	if got.BiologicalAge != 41 {
		t.Fatalf("expected biological age clamped to 41, got %v", got.BiologicalAge)
	}
}

func TestInferenceServicePredict_AuditTrailInOrder(t *testing.T) {
	sink := &mockAuditSink{}
	svc := newTestService(&stubScorer{score: 6}, sink)

	if _, err := svc.Predict(context.Background(), "req-1", healthBody(t, nil)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []audit.Stage{
		audit.StageReceived,
		audit.StageRawBody,
		audit.StageFeatures,
		audit.StageScored,
		audit.StageAgeResult,
		audit.StageResponse,
		audit.StageEnd,
	}
	got := sink.stages()
	if len(got) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected stages %v, got %v", want, got)
		}
	}
	for _, e := range sink.entries {
		if e.RequestID != "req-1" {
			t.Fatalf("expected request id on every entry, got %q", e.RequestID)
		}
	}
	if sink.entries[2].Features == nil || sink.entries[2].Features[9] != 12000 {
		t.Fatalf("expected features attached to feature stage, got %+v", sink.entries[2].Features)
	}
	wantResponse := `5. Sending result: {"chronological_age": 20, "health_score": 6, "biological_age": 19, "age_acceleration": -1}`
	if sink.entries[5].Message != wantResponse {
		t.Fatalf("expected %q, got %q", wantResponse, sink.entries[5].Message)
	}
}

func TestInferenceServiceRejectPredict(t *testing.T) {
	sink := &mockAuditSink{}
	svc := newTestService(&stubScorer{score: 5}, sink)

	svc.RejectPredict(context.Background(), "r9", "request body too large")

	got := sink.stages()
	want := []audit.Stage{audit.StageReceived, audit.StageRejected, audit.StageEnd}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("expected stages %v, got %v", want, got)
	}
	if sink.entries[1].Message != "Request Error: request body too large" || sink.entries[1].RequestID != "r9" {
		t.Fatalf("unexpected rejection entry %+v", sink.entries[1])
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	body := strings.Repeat("a", 4095) + "ñandú"
	got := truncate(body, 4096)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8, got %q", got[4090:])
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 4095)+"...(") {
		t.Fatalf("expected cut before the split rune, got %q", got[4090:])
	}

	got = truncate("{\"age\": \xff\xfe}", 4096)
	if !utf8.ValidString(got) || !strings.Contains(got, "\uFFFD") {
		t.Fatalf("expected invalid bytes replaced, got %q", got)
	}
}

func TestInferenceServicePredict_MissingFieldNeverScores(t *testing.T) {
	scorer := &stubScorer{score: 5}
	sink := &mockAuditSink{}
	svc := newTestService(scorer, sink)

	_, err := svc.Predict(context.Background(), "r1", healthBody(t, nil, "bmi"))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(vErr.Violations) != 1 || vErr.Violations[0].Field != "bmi" {
		t.Fatalf("expected bmi violation, got %+v", vErr.Violations)
	}
	if scorer.calls != 0 {
		t.Fatalf("expected scorer not called, got %d calls", scorer.calls)
	}

	stages := sink.stages()
	if stages[len(stages)-2] != audit.StageRejected || stages[len(stages)-1] != audit.StageEnd {
		t.Fatalf("expected rejection outcome logged, got %v", stages)
	}
}

func TestInferenceServicePredict_ModelUnavailable(t *testing.T) {
	sink := &mockAuditSink{}
	svc := newTestService(nil, sink)

	_, err := svc.Predict(context.Background(), "r1", healthBody(t, nil))
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	stages := sink.stages()
	if len(stages) == 0 || stages[len(stages)-1] != audit.StageEnd {
		t.Fatalf("expected failure outcome logged, got %v", stages)
	}

	if _, err := svc.Simulate(context.Background(), healthBody(t, nil)); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable from simulate, got %v", err)
	}
}

func TestInferenceServicePredict_ScorerFailureIsServerError(t *testing.T) {
	sink := &mockAuditSink{}
	svc := newTestService(&stubScorer{err: errors.New("bad tree")}, sink)

	_, err := svc.Predict(context.Background(), "r1", healthBody(t, nil))
	var sErr *ServerError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if !strings.Contains(sErr.Error(), "bad tree") {
		t.Fatalf("expected underlying message, got %q", sErr.Error())
	}

	found := false
	for _, e := range sink.entries {
		if e.Stage == audit.StageFailed && strings.Contains(e.Message, "bad tree") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected failure message in audit trail")
	}
}

func TestInferenceServicePredict_ScorerPanicIsServerError(t *testing.T) {
	svc := newTestService(&stubScorer{panic: true}, &mockAuditSink{})

	_, err := svc.Predict(context.Background(), "r1", healthBody(t, nil))
	var sErr *ServerError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
}

func TestInferenceServicePredict_AuditFailureIsNotFatal(t *testing.T) {
	svc := newTestService(&stubScorer{score: 5}, &mockAuditSink{err: errors.New("disk full")})

	if _, err := svc.Predict(context.Background(), "r1", healthBody(t, nil)); err != nil {
		t.Fatalf("expected audit failure to be ignored, got %v", err)
	}
}

func TestInferenceServiceSimulate(t *testing.T) {
	scorer := &stubScorer{score: 2}
	sink := &mockAuditSink{}
	svc := newTestService(scorer, sink)

	got, err := svc.Simulate(context.Background(), healthBody(t, map[string]any{"age": 70}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := domain.SimulationResult{HealthScore: 2, BiologicalAge: 76, AgeAcceleration: 6}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if len(sink.entries) != 0 {
		t.Fatalf("expected no per-stage audit entries, got %d", len(sink.entries))
	}

	if _, err := svc.Simulate(context.Background(), []byte(`{"age": 30}`)); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestInferenceServicePredict_FieldOrderInvariance(t *testing.T) {
	scorer := &stubScorer{score: 5}
	svc := newTestService(scorer, &mockAuditSink{})

	ordered := []byte(`{"age":37,"sleep_hours":5,"sleep_quality":0,"smoker":1,"alcohol":1,"bmi":29,"resting_hr":88,"systolic_bp":145,"diastolic_bp":95,"cholesterol":240,"daily_steps":2500,"family_history":1,"water_intake":1.2}`)
	shuffled := []byte(`{"water_intake":1.2,"family_history":1,"daily_steps":2500,"cholesterol":240,"diastolic_bp":95,"systolic_bp":145,"resting_hr":88,"bmi":29,"alcohol":1,"smoker":1,"sleep_quality":0,"sleep_hours":5,"age":37}`)

	if _, err := svc.Predict(context.Background(), "a", ordered); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	first := scorer.last
	if _, err := svc.Predict(context.Background(), "b", shuffled); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := []float64{5, 0, 1, 1, 29, 88, 145, 95, 240, 2500, 1, 1.2}
	for i := range want {
		if first[i] != want[i] || scorer.last[i] != want[i] {
			t.Fatalf("expected vector %v, got %v and %v", want, first, scorer.last)
		}
	}
}
