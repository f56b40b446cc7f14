package aggregator

import (
	"context"
	"fmt"
	"math"

	"github.com/skalibog/bfta/pkg/models"
)

// Hybrid требует согласия эвристики и модели. При расхождении решение NEUTRAL,
// противоположные направления никогда не усредняются.
type Hybrid struct {
	heuristic Strategy
	oracle    Strategy
}

func NewHybrid(heuristic, oracle Strategy) *Hybrid {
	return &Hybrid{heuristic: heuristic, oracle: oracle}
}

func (h *Hybrid) Name() string { return StrategyHybrid }

func (h *Hybrid) Decide(ctx context.Context, symbol string, signals []models.Signal, weights models.AgentWeights) models.Decision {
	a := h.heuristic.Decide(ctx, symbol, signals, weights)
	b := h.oracle.Decide(ctx, symbol, signals, weights)

	if a.Action != b.Action {
		d := models.NeutralDecision(symbol, fmt.Sprintf("расхождение: %s=%s, %s=%s", h.heuristic.Name(), a.Action, h.oracle.Name(), b.Action))
		d.Strategy = h.Name()
		return d
	}

	return models.Decision{
		Symbol:     symbol,
		Action:     a.Action,
		Confidence: math.Min(a.Confidence, b.Confidence),
		Reasoning:  fmt.Sprintf("%s | %s", a.Reasoning, b.Reasoning),
		Strategy:   h.Name(),
	}
}
