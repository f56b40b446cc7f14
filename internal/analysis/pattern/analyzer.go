// Package pattern распознает двойную вершину и двойное дно по локальным экстремумам закрытий.
package pattern

import (
	"context"
	"math"

	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/pkg/models"
)

const Name = "pattern"

const (
	// Минимальное расстояние между экстремумами в свечах
	peakDistance = 5
	// Допуск совпадения двух вершин
	matchTolerance = 0.01
)

type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Name() string { return Name }

func (a *Analyzer) Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error) {
	if err := agent.RequireBars(window, 3*peakDistance); err != nil {
		return models.Signal{}, err
	}

	closes := window.Closes()
	action := models.ActionNeutral
	confidence := 0.0
	name := "none"

	if isDouble(closes, findPeaks(closes, peakDistance, false)) {
		action, confidence, name = models.ActionSell, 0.6, "double_top"
	}
	// Двойное дно проверяется последним и имеет приоритет
	if isDouble(closes, findPeaks(closes, peakDistance, true)) {
		action, confidence, name = models.ActionBuy, 0.6, "double_bottom"
	}

	return models.NewSignal(Name, symbol, action, confidence, map[string]any{"pattern": name}), nil
}

func isDouble(values []float64, idx []int) bool {
	if len(idx) < 2 {
		return false
	}
	last, prev := values[idx[len(idx)-1]], values[idx[len(idx)-2]]
	if prev == 0 {
		return false
	}
	return math.Abs(last-prev)/math.Abs(prev) < matchTolerance
}

// findPeaks возвращает индексы строгих локальных максимумов (или минимумов при troughs).
// Из двух экстремумов ближе distance остается более выраженный.
func findPeaks(values []float64, distance int, troughs bool) []int {
	at := func(i int) float64 {
		if troughs {
			return -values[i]
		}
		return values[i]
	}

	var peaks []int
	for i := 1; i < len(values)-1; i++ {
		if at(i) <= at(i-1) || at(i) <= at(i+1) {
			continue
		}
		if n := len(peaks); n > 0 && i-peaks[n-1] < distance {
			if at(i) > at(peaks[n-1]) {
				peaks[n-1] = i
			}
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}
