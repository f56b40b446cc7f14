// Package whale отмечает аномальные всплески объема, похожие на вход крупного игрока.
package whale

import (
	"context"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/pkg/models"
)

const Name = "whale"

const (
	volumePeriod = 20
	// Объем во столько раз выше среднего считается входом кита
	spikeRatio = 3.0
)

type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Name() string { return Name }

func (a *Analyzer) Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error) {
	if err := agent.RequireBars(window, volumePeriod); err != nil {
		return models.Signal{}, err
	}

	avg := agent.Last(talib.Sma(window.Volumes(), volumePeriod))
	last := window.Last()

	ratio := 0.0
	if avg > 0 {
		ratio = last.Volume / avg
	}
	metadata := map[string]any{"volume_ratio": ratio}

	if ratio > spikeRatio {
		metadata["reason"] = "whale_volume_spike"
		action := models.ActionSell
		if last.Close > last.Open {
			action = models.ActionBuy
		}
		return models.NewSignal(Name, symbol, action, 0.95, metadata), nil
	}

	metadata["reason"] = "normal_volume"
	return models.NewSignal(Name, symbol, models.ActionNeutral, 0.1, metadata), nil
}
