package engine

import (
	"context"
	"fmt"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/internal/execution"
	"github.com/skalibog/bfta/internal/storage/sqlstore"
	"github.com/skalibog/bfta/internal/weights"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/multierr"
)

// Session - чистое состояние одного прогона по истории
type Session struct {
	Store   *sqlstore.Store
	Weights *weights.Store
	Wallet  *execution.PaperWallet
}

// SessionWiring собирает компоненты цикла поверх состояния прогона
type SessionWiring func(s Session) Deps

// BacktestIsolated прогоняет символ на собственном журнале в памяти, с пустой
// таблицей весов и новым бумажным счетом. Сделки, сигналы и веса рабочей базы
// в прогон не попадают, поэтому повторный запуск дает тот же результат.
func BacktestIsolated(ctx context.Context, cfg config.TradingConfig, symbol string, candles []*models.Candle, windowLen int, wire SessionWiring) (res BacktestResult, err error) {
	store, err := sqlstore.Open(":memory:")
	if err != nil {
		return BacktestResult{}, fmt.Errorf("ошибка открытия журнала бэктеста: %w", err)
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	session := Session{
		Store:   store,
		Weights: weights.NewStore(),
		Wallet:  execution.NewPaperWallet(cfg.PaperBalance),
	}
	trader := NewTrader(cfg, models.ModeBacktest, wire(session))
	return trader.Backtest(ctx, symbol, candles, windowLen)
}
