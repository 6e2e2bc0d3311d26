package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"bioage/internal/config"
	"bioage/internal/domain"
	"bioage/internal/model"
	"bioage/internal/service"
)

// Profile es un caso de referencia para revisar el modelo a mano.
type Profile struct {
	Name   string
	Record domain.HealthRecord
}

var profiles = []Profile{
	{
		Name: "good",
		Record: domain.HealthRecord{
			Age: 20, SleepHours: 8, SleepQuality: domain.SleepQualityGood,
			Smoker: 0, Alcohol: 0, BMI: 22, RestingHR: 60,
			SystolicBP: 110, DiastolicBP: 70, Cholesterol: 165,
			DailySteps: 12000, FamilyHistory: 0, WaterIntake: 3.0,
		},
	},
	{
		Name: "moderate",
		Record: domain.HealthRecord{
			Age: 29, SleepHours: 6.5, SleepQuality: domain.SleepQualityAverage,
			Smoker: 0, Alcohol: 1, BMI: 24, RestingHR: 72,
			SystolicBP: 125, DiastolicBP: 80, Cholesterol: 190,
			DailySteps: 7000, FamilyHistory: 1, WaterIntake: 2.0,
		},
	},
	{
		Name: "bad",
		Record: domain.HealthRecord{
			Age: 37, SleepHours: 5, SleepQuality: domain.SleepQualityPoor,
			Smoker: 1, Alcohol: 1, BMI: 29, RestingHR: 88,
			SystolicBP: 145, DiastolicBP: 95, Cholesterol: 240,
			DailySteps: 2500, FamilyHistory: 1, WaterIntake: 1.2,
		},
	},
}

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	scorer, err := model.Load(cfg.ModelPath, domain.FeatureNames[:])
	if err != nil {
		log.Fatalf("load model: %v", err)
	}

	predictor := service.NewHealthScorePredictor(scorer, nil, zap.NewNop())
	svc := service.NewInferenceService(predictor, nil, zap.NewNop())

	failed := 0
	for _, p := range profiles {
		body, err := json.Marshal(p.Record)
		if err != nil {
			log.Fatalf("marshal %s: %v", p.Name, err)
		}
		res, err := svc.Predict(ctx, "profile-"+p.Name, body)
		if err != nil {
			fmt.Printf("%-9s ERROR %v\n", p.Name, err)
			failed++
			continue
		}
		fmt.Printf("%-9s chronological_age=%d health_score=%.2f biological_age=%.2f age_acceleration=%+.2f\n",
			p.Name, res.ChronologicalAge, res.HealthScore, res.BiologicalAge, res.AgeAcceleration)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
