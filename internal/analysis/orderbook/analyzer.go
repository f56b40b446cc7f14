// Package orderbook оценивает баланс спроса и предложения в стакане.
package orderbook

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

const Name = "orderbook"

const deadband = 15

// Source отдает снимок стакана
type Source interface {
	GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error)
}

// Level уровень стакана в числах
type Level struct {
	Price  float64
	Amount float64
}

// Analyzer реализует анализатор стакана заявок
type Analyzer struct {
	config config.OrderBookConfig
	source Source
}

// NewAnalyzer создает новый анализатор стакана заявок
func NewAnalyzer(cfg config.OrderBookConfig, source Source) *Analyzer {
	return &Analyzer{
		config: cfg,
		source: source,
	}
}

func (a *Analyzer) Name() string { return Name }

func (a *Analyzer) Analyze(ctx context.Context, symbol string, _ models.Window) (models.Signal, error) {
	book, err := a.source.GetOrderBook(ctx, symbol, a.config.Depth)
	if err != nil {
		return models.Signal{}, fmt.Errorf("ошибка получения стакана: %w", err)
	}

	bids, asks, err := parseLevels(book)
	if err != nil {
		return models.Signal{}, err
	}
	if len(bids) == 0 || len(asks) == 0 {
		return models.Signal{}, fmt.Errorf("пустой стакан для %s", symbol)
	}

	imbalance := a.imbalance(bids, asks)
	depth := depthScore(bids, asks)
	walls := wallScore(bids, asks)
	spreads := spreadScore(bids, asks)

	score := imbalance*0.4 + depth*0.2 + walls*0.25 + spreads*0.15

	return agent.FromScore(Name, symbol, score, deadband, map[string]any{
		"imbalance": imbalance,
		"depth":     depth,
		"walls":     walls,
		"spreads":   spreads,
		"mid_price": (bids[0].Price + asks[0].Price) / 2,
	}), nil
}

// parseLevels переводит строки в числа. Биды по убыванию цены, аски по возрастанию.
func parseLevels(book *models.OrderBook) ([]Level, []Level, error) {
	convert := func(in []models.OrderBookLevel, side string) ([]Level, error) {
		out := make([]Level, len(in))
		for i, l := range in {
			price, err := strconv.ParseFloat(l.Price, 64)
			if err != nil {
				return nil, fmt.Errorf("ошибка парсинга цены %s: %w", side, err)
			}
			amount, err := strconv.ParseFloat(l.Amount, 64)
			if err != nil {
				return nil, fmt.Errorf("ошибка парсинга объема %s: %w", side, err)
			}
			out[i] = Level{Price: price, Amount: amount}
		}
		return out, nil
	}

	bids, err := convert(book.Bids, "бида")
	if err != nil {
		return nil, nil, err
	}
	asks, err := convert(book.Asks, "аска")
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	return bids, asks, nil
}

// imbalance перевес объема покупателей над продавцами, -100..100.
// Порог задан долей, как imbalance_threshold в конфигурации.
func (a *Analyzer) imbalance(bids, asks []Level) float64 {
	bidVolume, askVolume := total(bids), total(asks)
	if bidVolume+askVolume == 0 {
		return 0
	}

	ratio := (bidVolume - askVolume) / (bidVolume + askVolume)
	if math.Abs(ratio) < a.config.ImbalanceThreshold {
		return 0
	}
	return ratio * 100
}

// depthScore сравнивает ликвидность в полосах 0.5%, 1%, 2% и 5% от середины, ближние весят больше
func depthScore(bids, asks []Level) float64 {
	bands := []float64{0.005, 0.01, 0.02, 0.05}
	weights := []float64{0.4, 0.3, 0.2, 0.1}
	mid := (bids[0].Price + asks[0].Price) / 2

	var score float64
	for i, band := range bands {
		var bidVolume, askVolume float64
		for _, b := range bids {
			if 1-b.Price/mid <= band {
				bidVolume += b.Amount
			}
		}
		for _, s := range asks {
			if s.Price/mid-1 <= band {
				askVolume += s.Amount
			}
		}
		if sum := bidVolume + askVolume; sum > 0 {
			score += (bidVolume - askVolume) / sum * weights[i]
		}
	}
	return score * 100
}

// wallScore близкая крупная поддержка и далекое сопротивление дают бычью оценку
func wallScore(bids, asks []Level) float64 {
	if len(bids) < 3 || len(asks) < 3 {
		return 0
	}

	mid := (bids[0].Price + asks[0].Price) / 2
	support := closestWall(significant(bids), mid, false)
	resistance := closestWall(significant(asks), mid, true)
	if support == nil || resistance == nil {
		return 0
	}

	supportDist := math.Min((mid-support.Price)/mid, 0.1) / 0.1
	resistanceDist := math.Min((resistance.Price-mid)/mid, 0.1) / 0.1

	supportStrength := math.Min(1.0, support.Amount/1000)
	resistanceStrength := math.Min(1.0, resistance.Amount/1000)

	return ((1-supportDist)*supportStrength - resistanceDist*resistanceStrength) * 100
}

// spreadScore более редкие аски означают слабое сопротивление сверху
func spreadScore(bids, asks []Level) float64 {
	current := (asks[0].Price - bids[0].Price) / ((asks[0].Price + bids[0].Price) / 2)

	bidGaps := averageGap(bids, 5)
	askGaps := averageGap(asks, 5)

	ratio := 0.0
	if bidGaps > 0 && askGaps > 0 {
		ratio = (askGaps - bidGaps) / math.Max(bidGaps, askGaps)
	}

	return ratio * (1 - math.Min(current*100, 1.0)) * 50
}

func total(levels []Level) float64 {
	var sum float64
	for _, l := range levels {
		sum += l.Amount
	}
	return sum
}

// significant уровни с объемом выше 1.5 среднего
func significant(levels []Level) []Level {
	if len(levels) == 0 {
		return nil
	}
	avg := total(levels) / float64(len(levels))

	var out []Level
	for _, l := range levels {
		if l.Amount > avg*1.5 {
			out = append(out, l)
		}
	}
	return out
}

func closestWall(levels []Level, price float64, above bool) *Level {
	var closest *Level
	best := math.MaxFloat64

	for i, l := range levels {
		if (above && l.Price <= price) || (!above && l.Price >= price) {
			continue
		}
		if d := math.Abs(l.Price - price); d < best {
			best = d
			closest = &levels[i]
		}
	}
	return closest
}

// averageGap средний относительный шаг цены между соседними уровнями
func averageGap(levels []Level, count int) float64 {
	if len(levels) < count+1 {
		count = len(levels) - 1
	}
	if count <= 0 {
		return 0
	}

	var sum float64
	for i := 0; i < count; i++ {
		lo, hi := levels[i].Price, levels[i+1].Price
		if lo > hi {
			lo, hi = hi, lo
		}
		sum += (hi - lo) / lo
	}
	return sum / float64(count)
}
