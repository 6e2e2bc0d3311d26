package model

import (
	"errors"
	"fmt"
	"math"
)

// Scorer es el artefacto de scoring ya cargado. Las implementaciones son
// inmutables y seguras para uso concurrente.
type Scorer interface {
	Score(features []float64) (float64, error)
}

var (
	ErrFeatureCount   = errors.New("feature vector has wrong length")
	ErrNonFiniteScore = errors.New("model produced a non-finite score")
)

// ForestScorer promedia la salida de un ensamble de árboles de regresión.
type ForestScorer struct {
	trees    []tree
	features int
}

type tree struct {
	nodes []node
}

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

func (f *ForestScorer) Score(features []float64) (float64, error) {
	if len(features) != f.features {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), f.features)
	}
	var sum float64
	for i := range f.trees {
		sum += f.trees[i].predict(features)
	}
	out := sum / float64(len(f.trees))
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, ErrNonFiniteScore
	}
	return out, nil
}

// predict recorre el árbol desde la raíz; x[feature] <= threshold va a la izquierda.
func (t tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.left < 0 {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// LinearScorer es un modelo lineal intercept + coeficientes.
type LinearScorer struct {
	intercept    float64
	coefficients []float64
}

func (l *LinearScorer) Score(features []float64) (float64, error) {
	if len(features) != len(l.coefficients) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), len(l.coefficients))
	}
	out := l.intercept
	for i, c := range l.coefficients {
		out += c * features[i]
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, ErrNonFiniteScore
	}
	return out, nil
}
