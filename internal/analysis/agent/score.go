package agent

import (
	"math"

	"github.com/skalibog/bfta/pkg/models"
)

// FromScore переводит оценку -100..100 в сигнал.
// Оценка по модулю не выше deadband дает NEUTRAL, иначе направление со знаком оценки
// и уверенностью |score|/100.
func FromScore(name, symbol string, score, deadband float64, metadata map[string]any) models.Signal {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["score"] = score

	confidence := math.Min(math.Abs(score)/100, 1)
	switch {
	case score > deadband:
		return models.NewSignal(name, symbol, models.ActionBuy, confidence, metadata)
	case score < -deadband:
		return models.NewSignal(name, symbol, models.ActionSell, confidence, metadata)
	default:
		return models.NewSignal(name, symbol, models.ActionNeutral, confidence, metadata)
	}
}

// Slope наклон линейной регрессии ряда по индексу
func Slope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0
	}
	return slope
}
