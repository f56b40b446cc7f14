// Package momentum ищет развороты стохастика в зонах перекупленности и перепроданности.
package momentum

import (
	"context"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/pkg/models"
)

const Name = "momentum"

const (
	fastKPeriod = 5
	slowKPeriod = 3
	slowDPeriod = 3
	rocPeriod   = 10

	oversold   = 20
	overbought = 80
)

type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Name() string { return Name }

func (a *Analyzer) Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error) {
	if err := agent.RequireBars(window, fastKPeriod+slowKPeriod+slowDPeriod+rocPeriod); err != nil {
		return models.Signal{}, err
	}

	closes := window.Closes()
	slowK, slowD := talib.Stoch(window.Highs(), window.Lows(), closes,
		fastKPeriod, slowKPeriod, talib.SMA, slowDPeriod, talib.SMA)
	k, d := agent.Last(slowK), agent.Last(slowD)
	roc := agent.Last(talib.Roc(closes, rocPeriod))

	metadata := map[string]any{
		"stoch_k": k,
		"stoch_d": d,
		"roc":     roc,
	}

	action := models.ActionNeutral
	confidence := 0.0
	if agent.Finite(k, d, roc) {
		switch {
		// Пересечение вверх в зоне перепроданности при растущей цене
		case k < oversold && d < oversold && k > d && roc > 0:
			action, confidence = models.ActionBuy, 0.7
		case k > overbought && d > overbought && k < d && roc < 0:
			action, confidence = models.ActionSell, 0.7
		}
	}

	return models.NewSignal(Name, symbol, action, confidence, metadata), nil
}
