package service

import "math"

// neutralScore es el health score que no modifica la edad.
const neutralScore = 5.0

// yearsPerScorePoint es cuántos años suma cada punto por debajo del neutro.
const yearsPerScorePoint = 2.0

// MaxAgeDiff devuelve la desviación máxima permitida para la edad dada.
// Los límites de cada tramo pertenecen al tramo inferior (25 -> 1, 26 -> 2).
func MaxAgeDiff(age float64) float64 {
	switch {
	case age <= 25:
		return 1
	case age <= 35:
		return 2
	case age <= 50:
		return 4
	case age <= 65:
		return 6
	default:
		return 8
	}
}

// BiologicalAge ajusta la edad cronológica por el health score y acota el
// resultado a [age - MaxAgeDiff(age), age + MaxAgeDiff(age)]. El score no se
// acota.
func BiologicalAge(age int, score float64) float64 {
	a := float64(age)
	maxDiff := MaxAgeDiff(a)
	raw := a + (neutralScore-score)*yearsPerScorePoint
	return math.Max(a-maxDiff, math.Min(a+maxDiff, raw))
}

// round2 redondea a dos decimales.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
