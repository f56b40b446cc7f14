// Package oianalysis сопоставляет динамику открытого интереса с ценой.
package oianalysis

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

const Name = "openinterest"

const (
	deadband = 15
	// Сколько последних точек сравнивается с ценой
	divergencePoints = 5
)

// Source история открытого интереса, старые первыми
type Source interface {
	GetOpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]*models.OpenInterest, error)
}

// Analyzer реализует анализатор открытого интереса
type Analyzer struct {
	config config.OpenInterestConfig
	source Source
}

// NewAnalyzer создает новый анализатор открытого интереса
func NewAnalyzer(cfg config.OpenInterestConfig, source Source) *Analyzer {
	return &Analyzer{
		config: cfg,
		source: source,
	}
}

func (a *Analyzer) Name() string { return Name }

func (a *Analyzer) Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error) {
	if err := agent.RequireBars(window, divergencePoints); err != nil {
		return models.Signal{}, err
	}

	history, err := a.source.GetOpenInterestHistory(ctx, symbol, a.config.Period, a.config.Lookback)
	if err != nil {
		return models.Signal{}, fmt.Errorf("ошибка получения данных открытого интереса: %w", err)
	}

	values := make([]float64, 0, len(history))
	for _, oi := range history {
		v, err := strconv.ParseFloat(oi.Value, 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) < 2 {
		return models.Signal{}, fmt.Errorf("нет данных об открытом интересе для %s", symbol)
	}

	change := a.changeScore(values)
	divergence := divergenceScore(values, window.Closes())
	trend := trendScore(values)

	score := change*0.4 + divergence*0.4 + trend*0.2

	return agent.FromScore(Name, symbol, score, deadband, map[string]any{
		"open_interest": values[len(values)-1],
		"change":        change,
		"divergence":    divergence,
		"trend":         trend,
	}), nil
}

// changeScore рост OI усиливает текущее движение, падение OI говорит о завершении тренда
func (a *Analyzer) changeScore(values []float64) float64 {
	current, prev := values[len(values)-1], values[len(values)-2]
	if prev == 0 {
		return 0
	}

	// Порог задан долей, изменение считаем в процентах
	pct := (current - prev) / prev * 100
	threshold := a.config.ChangeThreshold * 100

	switch {
	case math.Abs(pct) < threshold:
		return 0
	case pct > 0:
		return math.Min(pct/threshold, 1.0) * 50
	default:
		return math.Min(math.Abs(pct)/threshold, 1.0) * -20
	}
}

// divergenceScore сравнивает наклоны цены и OI на последних точках.
// Цена растет при падающем OI: рост выдыхается.
func divergenceScore(oi, closes []float64) float64 {
	if len(oi) < divergencePoints || len(closes) < divergencePoints {
		return 0
	}

	oiSlope := agent.Slope(oi[len(oi)-divergencePoints:])
	priceSlope := agent.Slope(closes[len(closes)-divergencePoints:])
	strength := math.Min(math.Abs(priceSlope*oiSlope*1000), 1.0)

	switch {
	case priceSlope > 0 && oiSlope < 0:
		return -70 * strength
	case priceSlope < 0 && oiSlope > 0:
		return 70 * strength
	case priceSlope > 0 && oiSlope > 0:
		return 40 * strength
	case priceSlope < 0 && oiSlope < 0:
		return -40 * strength
	default:
		return 0
	}
}

func trendScore(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}
	slope := agent.Slope(values)
	if slope > 0 {
		return 30 * math.Min(slope*1000, 1.0)
	}
	return -30 * math.Min(math.Abs(slope)*1000, 1.0)
}
