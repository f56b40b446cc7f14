// Package volumedelta анализирует объем: всплески, OBV и накопленную дельту.
package volumedelta

import (
	"context"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/pkg/models"
)

// Name агент публикуется под общим именем volume
const Name = "volume"

const (
	volumePeriod = 20
	// Окно накопленной дельты
	deltaLookback = 30
	spikeRatio    = 2.0
)

// Analyzer реализует анализатор дельты объемов
type Analyzer struct{}

// NewAnalyzer создает новый анализатор дельты объемов
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Name() string { return Name }

// Analyze голосует по направлению свечи при всплеске объема выше 2x среднего
func (a *Analyzer) Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error) {
	if err := agent.RequireBars(window, volumePeriod+1); err != nil {
		return models.Signal{}, err
	}

	closes := window.Closes()
	volumes := window.Volumes()

	obv := agent.Last(talib.Obv(closes, volumes))
	avg := agent.Last(talib.Sma(volumes, volumePeriod))
	current := agent.Last(volumes)

	ratio := 0.0
	if avg > 0 {
		ratio = current / avg
	}

	metadata := map[string]any{
		"obv":              obv,
		"volume_ratio":     ratio,
		"cumulative_delta": cumulativeDelta(window, deltaLookback),
	}

	if ratio > spikeRatio {
		action := models.ActionSell
		if closes[len(closes)-1] > closes[len(closes)-2] {
			action = models.ActionBuy
		}
		return models.NewSignal(Name, symbol, action, 0.8, metadata), nil
	}

	return models.NewSignal(Name, symbol, models.ActionNeutral, 0.5, metadata), nil
}

// cumulativeDelta нормированная дельта объема от -100 до 100.
// Объем бычьей свечи считается покупками, медвежьей продажами, свежие свечи весят больше.
func cumulativeDelta(window models.Window, lookback int) float64 {
	var delta, total float64

	for i := 0; i < lookback && i < len(window); i++ {
		candle := window[len(window)-1-i]

		v := candle.Volume
		if candle.Close < candle.Open {
			v = -v
		}

		weight := 1.0 - float64(i)/float64(lookback)
		delta += v * weight
		total += math.Abs(v) * weight
	}

	if total == 0 {
		return 0
	}
	return delta / total * 100
}
