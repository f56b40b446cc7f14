package technical

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

// Name имя агента в реестре и в таблице весов
const Name = "technical"

// Analyzer публикует сырые показатели индикаторов без направления (ANALYSIS).
// Агрегатор читает из метаданных rsi, macd, macd_signal и atr.
type Analyzer struct {
	config config.TechnicalConfig
}

// NewAnalyzer создает новый анализатор технических индикаторов
func NewAnalyzer(cfg config.TechnicalConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

func (a *Analyzer) Name() string { return Name }

// Analyze выполняет технический анализ для символа
func (a *Analyzer) Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error) {
	if err := agent.RequireBars(window, a.minBars()); err != nil {
		return models.Signal{}, err
	}

	closes := window.Closes()
	highs := window.Highs()
	lows := window.Lows()

	rsi := agent.Last(talib.Rsi(closes, a.config.RSIPeriod))
	macd, macdSignal, macdHist := talib.Macd(closes, a.config.MACDFast, a.config.MACDSlow, a.config.MACDSignal)
	upper, middle, lower := talib.BBands(closes, a.config.BBPeriod, 2.0, 2.0, talib.SMA)
	atr := agent.Last(talib.Atr(highs, lows, closes, a.config.ATRPeriod))

	lastClose := agent.Last(closes)
	lastUpper, lastMiddle, lastLower := agent.Last(upper), agent.Last(middle), agent.Last(lower)

	if !agent.Finite(rsi, agent.Last(macd), agent.Last(macdSignal), atr, lastUpper, lastLower) {
		return models.Signal{}, fmt.Errorf("индикаторы не определены для %s", symbol)
	}

	// Позиция цены в полосе (0 = нижняя граница, 1 = верхняя граница)
	bbPosition := 0.5
	if lastUpper != lastLower {
		bbPosition = (lastClose - lastLower) / (lastUpper - lastLower)
	}
	bbWidth := 0.0
	if lastMiddle != 0 {
		bbWidth = (lastUpper - lastLower) / lastMiddle
	}

	metadata := map[string]any{
		"rsi":         rsi,
		"macd":        agent.Last(macd),
		"macd_signal": agent.Last(macdSignal),
		"macd_hist":   agent.Last(macdHist),
		"bb_width":    bbWidth,
		"bb_position": bbPosition,
		"atr":         atr,
		"price":       lastClose,
	}
	if len(window) >= 52 {
		metadata["ichimoku"] = ichimokuScore(highs, lows, closes)
	}

	return models.NewSignal(Name, symbol, models.ActionAnalysis, 1.0, metadata), nil
}

func (a *Analyzer) minBars() int {
	n := a.config.MACDSlow + a.config.MACDSignal
	if a.config.BBPeriod > n {
		n = a.config.BBPeriod
	}
	if a.config.RSIPeriod+1 > n {
		n = a.config.RSIPeriod + 1
	}
	return n
}

// ichimokuScore оценивает положение цены относительно облака в диапазоне -100..100
func ichimokuScore(highs, lows, closes []float64) float64 {
	tenkan := agent.Last(ichimokuLine(highs, lows, 9))
	kijun := agent.Last(ichimokuLine(highs, lows, 26))
	senkouA := (tenkan + kijun) / 2
	senkouB := agent.Last(ichimokuLine(highs, lows, 52))
	lastClose := agent.Last(closes)

	var score float64
	switch {
	// Цена выше облака: бычий сигнал
	case lastClose > math.Max(senkouA, senkouB):
		score = 50
		if tenkan > kijun {
			score += 30
		}
		if senkouA > senkouB {
			score += 20
		}
	// Цена ниже облака: медвежий сигнал
	case lastClose < math.Min(senkouA, senkouB):
		score = -50
		if tenkan < kijun {
			score -= 30
		}
		if senkouA < senkouB {
			score -= 20
		}
	default:
		if tenkan > kijun {
			score = 25
		} else if tenkan < kijun {
			score = -25
		}
	}
	return score
}

// ichimokuLine середина диапазона high/low за период
func ichimokuLine(highs, lows []float64, period int) []float64 {
	result := make([]float64, len(highs))

	for i := period - 1; i < len(highs); i++ {
		periodHigh := highs[i]
		periodLow := lows[i]
		for j := i - period + 1; j < i; j++ {
			if highs[j] > periodHigh {
				periodHigh = highs[j]
			}
			if lows[j] < periodLow {
				periodLow = lows[j]
			}
		}
		result[i] = (periodHigh + periodLow) / 2
	}

	return result
}
