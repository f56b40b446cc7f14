package engine

import (
	"context"
	"fmt"

	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
)

// BacktestResult - итог прогона по истории
type BacktestResult struct {
	Symbol  string
	Reports []models.CycleReport
	Closed  []*models.Trade
	PnL     float64
	Wins    int
	Losses  int
}

// Backtest прогоняет символ по готовым свечам скользящим окном windowLen.
// Часы - время закрытия последнего бара окна, режим BACKTEST. Перед решением
// открытые сделки проверяются против этого бара. При детерминированных агентах
// и эвристической стратегии результат воспроизводим.
func (t *Trader) Backtest(ctx context.Context, symbol string, candles []*models.Candle, windowLen int) (BacktestResult, error) {
	if windowLen <= 0 || len(candles) < windowLen {
		return BacktestResult{}, fmt.Errorf("недостаточно свечей для бэктеста: %d, окно %d", len(candles), windowLen)
	}

	result := BacktestResult{Symbol: symbol}
	for end := windowLen; end <= len(candles); end++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		window := models.Window(candles[end-windowLen : end])
		bar := window.Last()
		cycleID := fmt.Sprintf("backtest-%s-%d", symbol, bar.CloseTime.Unix())

		closed := t.settle(ctx, symbol, bar)
		for _, tr := range closed {
			pnl, _ := tr.PnL()
			result.PnL += pnl
			if pnl > 0 {
				result.Wins++
			} else if pnl < 0 {
				result.Losses++
			}
		}
		result.Closed = append(result.Closed, closed...)
		if len(closed) > 0 {
			t.learn(ctx)
		}

		report := t.process(ctx, cycleID, symbol, window, models.ModeBacktest, bar.CloseTime)
		result.Reports = append(result.Reports, report)
	}

	if t.Reporter != nil {
		t.Reporter.Report(result.Reports)
	}
	logger.Info("Бэктест завершен",
		zap.String("symbol", symbol),
		zap.Int("bars", len(candles)),
		zap.Int("closed", len(result.Closed)),
		zap.Int("wins", result.Wins),
		zap.Int("losses", result.Losses),
		zap.Float64("pnl", result.PnL))
	return result, nil
}
