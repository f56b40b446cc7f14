// Package volatility оценивает текущий истинный диапазон относительно ATR.
// Агент не выбирает направление, но публикует atr, по которому считается стоп.
package volatility

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/pkg/models"
)

const Name = "volatility"

const atrPeriod = 14

type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Name() string { return Name }

func (a *Analyzer) Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error) {
	if err := agent.RequireBars(window, atrPeriod+1); err != nil {
		return models.Signal{}, err
	}

	highs, lows, closes := window.Highs(), window.Lows(), window.Closes()
	atr := agent.Last(talib.Atr(highs, lows, closes, atrPeriod))
	current := agent.Last(talib.TRange(highs, lows, closes))
	if !agent.Finite(atr, current) || atr <= 0 {
		return models.Signal{}, fmt.Errorf("ATR не определен для %s", symbol)
	}

	metadata := map[string]any{
		"atr":        atr,
		"true_range": current,
	}

	switch {
	// Всплеск волатильности: высокий риск, входить не стоит
	case current > 2*atr:
		metadata["status"] = "high_volatility"
		return models.NewSignal(Name, symbol, models.ActionNeutral, 0.9, metadata), nil
	// Сжатие диапазона часто предшествует пробою
	case current < 0.5*atr:
		metadata["status"] = "squeeze"
		return models.NewSignal(Name, symbol, models.ActionAnalysis, 0.8, metadata), nil
	default:
		metadata["status"] = "normal"
		return models.NewSignal(Name, symbol, models.ActionNeutral, 0.5, metadata), nil
	}
}
