package aggregator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

// Пороги индикаторов для поправок от ANALYSIS сигналов
const (
	rsiOversold   = 30
	rsiOverbought = 70
)

// Heuristic - детерминированное взвешенное голосование
type Heuristic struct {
	cfg config.AggregatorConfig
}

func NewHeuristic(cfg config.AggregatorConfig) *Heuristic {
	return &Heuristic{cfg: cfg}
}

func (h *Heuristic) Name() string { return StrategyHeuristic }

// Score считает sum(sign * confidence * weight) плюс поправки RSI и MACD
// от ANALYSIS сигналов. Второе значение - вклад каждого агента для объяснения.
func (h *Heuristic) Score(signals []models.Signal, weights models.AgentWeights) (float64, []string) {
	var score float64
	parts := make([]string, 0, len(signals))

	for _, s := range signals {
		switch {
		case s.Action.Directional():
			c := s.Action.Sign() * s.Confidence * weights.Get(s.AgentName)
			score += c
			parts = append(parts, fmt.Sprintf("%s %+.3f", s.AgentName, c))
		case s.Action == models.ActionAnalysis:
			if bias := h.analysisBias(s); bias != 0 {
				score += bias
				parts = append(parts, fmt.Sprintf("%s %+.3f", s.AgentName, bias))
			}
		}
	}
	return score, parts
}

func (h *Heuristic) analysisBias(s models.Signal) float64 {
	var bias float64
	if rsi, ok := s.Float("rsi"); ok {
		switch {
		case rsi < rsiOversold:
			bias += h.cfg.RSIBias
		case rsi > rsiOverbought:
			bias -= h.cfg.RSIBias
		}
	}
	macd, okMACD := s.Float("macd")
	signal, okSignal := s.Float("macd_signal")
	if okMACD && okSignal && macd > signal {
		bias += h.cfg.MACDBias
	}
	return bias
}

func (h *Heuristic) Decide(_ context.Context, symbol string, signals []models.Signal, weights models.AgentWeights) models.Decision {
	score, parts := h.Score(signals, weights)
	reasoning := fmt.Sprintf("score=%.3f [%s]", score, strings.Join(parts, ", "))

	var action models.Action
	var threshold float64
	switch {
	case score >= h.cfg.BuyThreshold:
		action, threshold = models.ActionBuy, h.cfg.BuyThreshold
	case score <= h.cfg.SellThreshold:
		action, threshold = models.ActionSell, h.cfg.SellThreshold
	default:
		d := models.NeutralDecision(symbol, reasoning)
		d.Strategy = h.Name()
		return d
	}

	th := math.Abs(threshold)
	confidence := (math.Abs(score)-th)/th*h.cfg.ConfidenceScale + h.cfg.BaseConfidence

	return models.Decision{
		Symbol:     symbol,
		Action:     action,
		Confidence: models.ClampConfidence(confidence),
		Reasoning:  reasoning,
		Strategy:   h.Name(),
	}
}
