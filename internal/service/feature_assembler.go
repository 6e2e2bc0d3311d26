package service

import "bioage/internal/domain"

// AssembleFeatures selecciona los doce campos del modelo en el orden de
// domain.FeatureNames. La edad cronológica no forma parte del vector.
func AssembleFeatures(r domain.HealthRecord) domain.FeatureVector {
	return domain.FeatureVector{
		r.SleepHours,
		float64(r.SleepQuality),
		float64(r.Smoker),
		float64(r.Alcohol),
		r.BMI,
		r.RestingHR,
		r.SystolicBP,
		r.DiastolicBP,
		r.Cholesterol,
		float64(r.DailySteps),
		float64(r.FamilyHistory),
		r.WaterIntake,
	}
}
