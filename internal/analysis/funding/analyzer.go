package funding

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

const Name = "funding"

// Оценка по модулю не выше этого значения считается шумом
const deadband = 20

// Source - история ставок финансирования, старые первыми
type Source interface {
	GetFundingRateHistory(ctx context.Context, symbol string, limit int) ([]*models.FundingRate, error)
}

// Analyzer реализует анализатор ставок финансирования.
// Высокая положительная ставка означает перегретые лонги и дает медвежий сигнал.
type Analyzer struct {
	config config.FundingConfig
	source Source
}

// NewAnalyzer создает новый анализатор ставок финансирования
func NewAnalyzer(cfg config.FundingConfig, source Source) *Analyzer {
	return &Analyzer{
		config: cfg,
		source: source,
	}
}

func (a *Analyzer) Name() string { return Name }

// Analyze свечи не использует, данные берутся из источника ставок
func (a *Analyzer) Analyze(ctx context.Context, symbol string, _ models.Window) (models.Signal, error) {
	history, err := a.source.GetFundingRateHistory(ctx, symbol, a.config.Periods)
	if err != nil {
		return models.Signal{}, fmt.Errorf("ошибка получения ставок финансирования: %w", err)
	}

	rates := make([]float64, 0, len(history))
	for _, r := range history {
		v, err := strconv.ParseFloat(r.Rate, 64)
		if err != nil {
			continue
		}
		rates = append(rates, v)
	}
	if len(rates) == 0 {
		return models.Signal{}, fmt.Errorf("нет данных о ставках финансирования для %s", symbol)
	}

	extreme := a.extremeScore(rates[len(rates)-1])
	trend := trendScore(rates)
	change := changeScore(rates)

	score := extreme*0.4 + trend*0.4 + change*0.2

	return agent.FromScore(Name, symbol, score, deadband, map[string]any{
		"funding_rate": rates[len(rates)-1],
		"extreme":      extreme,
		"trend":        trend,
		"change":       change,
	}), nil
}

// extremeScore оценивает текущую ставку. За пределами порога сигнал против толпы.
func (a *Analyzer) extremeScore(current float64) float64 {
	threshold := a.config.ExtremeThreshold
	switch {
	case current > threshold:
		return -100 * math.Min(current/0.01, 1.0)
	case current < -threshold:
		return 100 * math.Min(math.Abs(current)/0.01, 1.0)
	default:
		return -current * 10000
	}
}

// trendScore растущие ставки медвежьи, падающие бычьи
func trendScore(rates []float64) float64 {
	if len(rates) < 3 {
		return 0
	}
	slope := agent.Slope(rates)
	if slope > 0 {
		return -100 * math.Min(slope*1000, 1.0)
	}
	return 100 * math.Min(math.Abs(slope)*1000, 1.0)
}

// changeScore реакция на последнее изменение ставки
func changeScore(rates []float64) float64 {
	if len(rates) < 2 {
		return 0
	}
	change := rates[len(rates)-1] - rates[len(rates)-2]
	if change > 0 {
		return -100 * math.Min(change/0.001, 1.0)
	}
	return 100 * math.Min(math.Abs(change)/0.001, 1.0)
}
