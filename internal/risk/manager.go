package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

// ErrInvalidATR возвращается, когда волатильность не положительна
var ErrInvalidATR = errors.New("atr должен быть положительным")

// Manager считает стоп-лосс, размер позиции и проверяет дневной лимит убытка
type Manager struct {
	riskPerTrade   float64
	maxLeverage    float64
	dailyLossLimit float64
	atrMultiplier  float64
	rewardRatio    float64
	precision      int32
}

// NewManager создает риск-менеджер
func NewManager(cfg config.RiskConfig) *Manager {
	return &Manager{
		riskPerTrade:   cfg.RiskPerTrade,
		maxLeverage:    cfg.MaxLeverage,
		dailyLossLimit: cfg.DailyLossLimit,
		atrMultiplier:  cfg.ATRMultiplier,
		rewardRatio:    cfg.RewardRatio,
		precision:      cfg.QuantityPrecision,
	}
}

// StopLoss возвращает уровень стоп-лосса: entry -/+ k*atr
func (m *Manager) StopLoss(entry float64, direction models.Action, atr float64) (float64, error) {
	if !finite(atr) || atr <= 0 {
		return 0, ErrInvalidATR
	}
	if !finite(entry) || entry <= 0 {
		return 0, fmt.Errorf("некорректная цена входа %v", entry)
	}
	offset := m.atrMultiplier * atr
	switch direction {
	case models.ActionBuy:
		return entry - offset, nil
	case models.ActionSell:
		return entry + offset, nil
	default:
		return 0, fmt.Errorf("стоп-лосс для направления %s не определен", direction)
	}
}

// TakeProfit возвращает цель по прибыли с соотношением риск/доход rewardRatio
func (m *Manager) TakeProfit(entry, stop float64, direction models.Action) float64 {
	dist := math.Abs(entry-stop) * m.rewardRatio
	if direction == models.ActionSell {
		return entry - dist
	}
	return entry + dist
}

// PositionSize возвращает количество так, чтобы при срабатывании стопа
// потерять не больше balance*riskPerTrade. Номинал ограничен balance*maxLeverage.
func (m *Manager) PositionSize(balance, entry, stop float64) float64 {
	// NaN и бесконечность decimal не принимает
	if !finite(balance) || !finite(entry) || !finite(stop) {
		return 0
	}
	if balance <= 0 || entry <= 0 {
		return 0
	}
	diff := math.Abs(entry - stop)
	if diff == 0 {
		return 0
	}

	risked := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(m.riskPerTrade))
	qty := risked.Div(decimal.NewFromFloat(diff))

	price := decimal.NewFromFloat(entry)
	maxNotional := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(m.maxLeverage))
	if qty.Mul(price).GreaterThan(maxNotional) {
		qty = maxNotional.Div(price)
	}

	// Усечение вниз, чтобы округление не вывело номинал за лимит
	out, _ := qty.Truncate(m.precision).Float64()
	return out
}

// SafetyGate возвращает false, если дневной убыток достиг лимита
func (m *Manager) SafetyGate(dailyLossFraction float64) bool {
	return dailyLossFraction < m.dailyLossLimit
}

// ATRFallback - запасная волатильность, 1% от цены
func ATRFallback(price float64) float64 {
	return price * 0.01
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
