// Package settlement закрывает бумажные сделки по стоп-лоссу и тейк-профиту.
// Сделки LIVE закрывает биржа, здесь они не трогаются.
package settlement

import (
	"context"
	"fmt"

	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Store - открытые сделки и их обновление
type Store interface {
	OpenTrades(ctx context.Context, symbol string) ([]*models.Trade, error)
	UpdateTrade(ctx context.Context, t *models.Trade) error
}

// Wallet принимает реализованный результат
type Wallet interface {
	Credit(pnl float64)
}

// Settler проверяет открытые сделки символа против очередного бара
type Settler struct {
	store  Store
	wallet Wallet
}

// NewSettler создает расчетчик. wallet может быть nil.
func NewSettler(store Store, wallet Wallet) *Settler {
	return &Settler{store: store, wallet: wallet}
}

// Settle закрывает сделки символа, чей уровень задет баром. Бар должен
// закрыться позже входа. Если бар задел оба уровня, считается стоп.
func (s *Settler) Settle(ctx context.Context, symbol string, bar *models.Candle) ([]*models.Trade, error) {
	if bar == nil {
		return nil, nil
	}
	open, err := s.store.OpenTrades(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения открытых сделок: %w", err)
	}

	var (
		closed []*models.Trade
		errs   error
	)
	for _, t := range open {
		if t.Mode == models.ModeLive || !bar.CloseTime.After(t.EntryTime) {
			continue
		}
		price, hit := ExitPrice(t, bar)
		if !hit {
			continue
		}

		t.Close(price, bar.CloseTime)
		if err := s.store.UpdateTrade(ctx, t); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		pnl, _ := t.PnL()
		if s.wallet != nil {
			s.wallet.Credit(pnl)
		}
		closed = append(closed, t)

		logger.Info("Сделка закрыта",
			zap.String("id", t.ID),
			zap.String("symbol", t.Symbol),
			zap.Float64("exit", price),
			zap.Float64("pnl", pnl))
	}
	return closed, errs
}

// ExitPrice возвращает уровень, который задел бар
func ExitPrice(t *models.Trade, bar *models.Candle) (float64, bool) {
	switch t.Direction {
	case models.ActionBuy:
		if bar.Low <= t.StopLoss {
			return t.StopLoss, true
		}
		if bar.High >= t.TakeProfit {
			return t.TakeProfit, true
		}
	case models.ActionSell:
		if bar.High >= t.StopLoss {
			return t.StopLoss, true
		}
		if bar.Low <= t.TakeProfit {
			return t.TakeProfit, true
		}
	}
	return 0, false
}
