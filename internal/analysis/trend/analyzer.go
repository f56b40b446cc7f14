// Package trend следует за направлением рынка по ADX и паре EMA.
package trend

import (
	"context"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/pkg/models"
)

const Name = "trend"

const (
	adxPeriod      = 14
	emaShortPeriod = 12
	emaLongPeriod  = 26
	// Ниже этого ADX тренд считается отсутствующим
	strongTrendADX = 25
)

type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Name() string { return Name }

// Analyze голосует по направлению EMA, когда ADX подтверждает силу тренда.
// Уверенность 0.6 + min(adx, 50)/100.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error) {
	if err := agent.RequireBars(window, 2*adxPeriod+2); err != nil {
		return models.Signal{}, err
	}

	closes := window.Closes()
	adx := agent.Last(talib.Adx(window.Highs(), window.Lows(), closes, adxPeriod))
	emaShort := agent.Last(talib.Ema(closes, emaShortPeriod))
	emaLong := agent.Last(talib.Ema(closes, emaLongPeriod))

	metadata := map[string]any{
		"adx":       adx,
		"ema_short": emaShort,
		"ema_long":  emaLong,
	}

	action := models.ActionNeutral
	confidence := 0.0
	if agent.Finite(adx, emaShort, emaLong) && adx > strongTrendADX {
		switch {
		case emaShort > emaLong:
			action = models.ActionBuy
		case emaShort < emaLong:
			action = models.ActionSell
		}
		if action != models.ActionNeutral {
			confidence = 0.6 + math.Min(adx, 50)/100
		}
	}

	return models.NewSignal(Name, symbol, action, confidence, metadata), nil
}
