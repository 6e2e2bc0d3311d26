package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"bioage/internal/domain"
)

// FieldViolation describe un campo rechazado por el validador.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError agrupa todas las violaciones de un input.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "invalid input"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return strings.Join(parts, "; ")
}

type fieldKind int

const (
	kindInt fieldKind = iota
	kindFloat
)

type fieldSpec struct {
	name        string
	kind        fieldKind
	allowed     []int
	nonNegative bool
}

var (
	binaryValues       = []int{0, 1}
	sleepQualityValues = []int{domain.SleepQualityPoor, domain.SleepQualityAverage, domain.SleepQualityGood}
)

// healthSchema declara los trece campos requeridos en el orden en que se reportan.
var healthSchema = []fieldSpec{
	{name: "age", kind: kindInt, nonNegative: true},
	{name: "sleep_hours", kind: kindFloat},
	{name: "sleep_quality", kind: kindInt, allowed: sleepQualityValues},
	{name: "smoker", kind: kindInt, allowed: binaryValues},
	{name: "alcohol", kind: kindInt, allowed: binaryValues},
	{name: "bmi", kind: kindFloat},
	{name: "resting_hr", kind: kindFloat},
	{name: "systolic_bp", kind: kindFloat},
	{name: "diastolic_bp", kind: kindFloat},
	{name: "cholesterol", kind: kindFloat},
	{name: "daily_steps", kind: kindInt},
	{name: "family_history", kind: kindInt, allowed: binaryValues},
	{name: "water_intake", kind: kindFloat},
}

// maxExactInt es el mayor entero representable sin pérdida en un float64.
const maxExactInt = 1 << 53

// DecodeHealthInput parsea el body crudo como objeto JSON sin tipar.
func DecodeHealthInput(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Violations: []FieldViolation{{Field: "body", Reason: "request body is empty"}}}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, &ValidationError{Violations: []FieldViolation{{Field: "body", Reason: "must be a JSON object"}}}
	}
	if dec.More() {
		return nil, &ValidationError{Violations: []FieldViolation{{Field: "body", Reason: "unexpected data after JSON object"}}}
	}
	return raw, nil
}

// ValidateHealthRecord convierte un input sin tipar en un HealthRecord.
// Es todo o nada: cualquier violación rechaza el registro completo.
func ValidateHealthRecord(raw map[string]any) (domain.HealthRecord, error) {
	values := make(map[string]float64, len(healthSchema))
	var violations []FieldViolation

	for _, spec := range healthSchema {
		v, ok := raw[spec.name]
		if !ok {
			violations = append(violations, FieldViolation{Field: spec.name, Reason: "field required"})
			continue
		}
		n, err := coerceField(spec, v)
		if err != nil {
			violations = append(violations, FieldViolation{Field: spec.name, Reason: err.Error()})
			continue
		}
		values[spec.name] = n
	}
	if len(violations) > 0 {
		return domain.HealthRecord{}, &ValidationError{Violations: violations}
	}

	return domain.HealthRecord{
		Age:           int(values["age"]),
		SleepHours:    values["sleep_hours"],
		SleepQuality:  int(values["sleep_quality"]),
		Smoker:        int(values["smoker"]),
		Alcohol:       int(values["alcohol"]),
		BMI:           values["bmi"],
		RestingHR:     values["resting_hr"],
		SystolicBP:    values["systolic_bp"],
		DiastolicBP:   values["diastolic_bp"],
		Cholesterol:   values["cholesterol"],
		DailySteps:    int(values["daily_steps"]),
		FamilyHistory: int(values["family_history"]),
		WaterIntake:   values["water_intake"],
	}, nil
}

func coerceField(spec fieldSpec, v any) (float64, error) {
	n, err := coerceNumber(v)
	if err != nil {
		return 0, err
	}
	if spec.kind == kindFloat {
		return n, nil
	}

	if n != math.Trunc(n) {
		return 0, errors.New("must be an integer")
	}
	if math.Abs(n) > maxExactInt {
		return 0, errors.New("integer out of range")
	}
	if spec.nonNegative && n < 0 {
		return 0, errors.New("must be greater than or equal to 0")
	}
	if len(spec.allowed) > 0 && !containsInt(spec.allowed, int(n)) {
		return 0, fmt.Errorf("must be one of %s", formatInts(spec.allowed))
	}
	return n, nil
}

func coerceNumber(v any) (float64, error) {
	var (
		n   float64
		err error
	)
	switch t := v.(type) {
	case nil:
		return 0, errors.New("must not be null")
	case bool:
		return 0, errors.New("must be a number, got boolean")
	case json.Number:
		n, err = strconv.ParseFloat(t.String(), 64)
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case string:
		n, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("must be a number, got %T", v)
	}
	if err != nil {
		return 0, errors.New("must be a valid number")
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, errors.New("must be a finite number")
	}
	return n, nil
}

func containsInt(values []int, n int) bool {
	for _, v := range values {
		if v == n {
			return true
		}
	}
	return false
}

func formatInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
