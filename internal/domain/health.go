package domain

// Valores de sleep_quality.
const (
	SleepQualityPoor    = 0
	SleepQualityAverage = 1
	SleepQualityGood    = 2
)

// FeatureCount es la cantidad de features que consume el artefacto de scoring.
const FeatureCount = 12

// FeatureNames define el orden contractual del FeatureVector. Debe coincidir
// con el orden con el que se entrenó el artefacto.
var FeatureNames = [FeatureCount]string{
	"sleep_hours",
	"sleep_quality",
	"smoker",
	"alcohol",
	"bmi",
	"resting_hr",
	"systolic_bp",
	"diastolic_bp",
	"cholesterol",
	"daily_steps",
	"family_history",
	"water_intake",
}

// HealthRecord es el input validado de una persona.
type HealthRecord struct {
	Age           int     `json:"age"`
	SleepHours    float64 `json:"sleep_hours"`
	SleepQuality  int     `json:"sleep_quality"`
	Smoker        int     `json:"smoker"`
	Alcohol       int     `json:"alcohol"`
	BMI           float64 `json:"bmi"`
	RestingHR     float64 `json:"resting_hr"`
	SystolicBP    float64 `json:"systolic_bp"`
	DiastolicBP   float64 `json:"diastolic_bp"`
	Cholesterol   float64 `json:"cholesterol"`
	DailySteps    int     `json:"daily_steps"`
	FamilyHistory int     `json:"family_history"`
	WaterIntake   float64 `json:"water_intake"`
}

// FeatureVector es la entrada ordenada del artefacto de scoring.
type FeatureVector [FeatureCount]float64

// Slice devuelve una copia del vector como slice.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// BiologicalAgeResult es la respuesta de /predict.
type BiologicalAgeResult struct {
	ChronologicalAge int     `json:"chronological_age"`
	HealthScore      float64 `json:"health_score"`
	BiologicalAge    float64 `json:"biological_age"`
	AgeAcceleration  float64 `json:"age_acceleration"`
}

// SimulationResult es la respuesta de /simulate (sin eco de la edad).
type SimulationResult struct {
	HealthScore     float64 `json:"health_score"`
	BiologicalAge   float64 `json:"biological_age"`
	AgeAcceleration float64 `json:"age_acceleration"`
}

// Simulation recorta el resultado al formato de /simulate.
func (r BiologicalAgeResult) Simulation() SimulationResult {
	return SimulationResult{
		HealthScore:     r.HealthScore,
		BiologicalAge:   r.BiologicalAge,
		AgeAcceleration: r.AgeAcceleration,
	}
}
