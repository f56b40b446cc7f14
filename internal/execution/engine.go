// Package execution превращает направленное решение в сделку с учетом риска и режима.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/internal/risk"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
)

// Venue - торговая площадка, вызывается только в режиме LIVE
type Venue interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderConfirmation, error)
}

// TradeStore - журнал сделок
type TradeStore interface {
	StoreTrade(ctx context.Context, t *models.Trade) error
	HasOpenTrade(ctx context.Context, symbol string, mode models.Mode) (bool, error)
}

// Ledger отдает реализованный результат для дневного лимита
type Ledger interface {
	RealizedPnL(ctx context.Context, since time.Time) (float64, error)
}

// Observer получает созданные сделки и пропуски
type Observer interface {
	ObserveTrade(t *models.Trade)
	ObserveSkip(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveTrade(*models.Trade) {}
func (nopObserver) ObserveSkip(string)         {}

// Order - все, что нужно для исполнения одного решения
type Order struct {
	Decision models.Decision
	Symbol   string
	Price    float64
	ATR      float64
	Balance  float64
	Mode     models.Mode
	// Timestamp - время бара, используется как время входа в BACKTEST
	Timestamp time.Time
}

// Engine - единственный писатель сделок
type Engine struct {
	risk      *risk.Manager
	store     TradeStore
	ledger    Ledger
	venue     Venue
	observer  Observer
	liveFloor float64
	locks     *keyedMutex
	now       func() time.Time
}

// NewEngine создает движок исполнения. venue может быть nil, если LIVE не используется.
func NewEngine(cfg config.RiskConfig, store TradeStore, ledger Ledger, venue Venue, observer Observer) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Engine{
		risk:      risk.NewManager(cfg),
		store:     store,
		ledger:    ledger,
		venue:     venue,
		observer:  observer,
		liveFloor: cfg.LiveConfidenceFloor,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Risk возвращает риск-менеджер движка
func (e *Engine) Risk() *risk.Manager { return e.risk }

// EffectiveMode понижает LIVE до PAPER, если уверенность ниже порога
func (e *Engine) EffectiveMode(mode models.Mode, confidence float64) models.Mode {
	if mode == models.ModeLive && confidence < e.liveFloor {
		return models.ModePaper
	}
	return mode
}

// Execute создает сделку по решению. Пропуск возвращается как *SkipError,
// сбои хранилища и площадки - обычными ошибками. В обоих случаях сделка не создается,
// кроме ErrUnrecorded: заявка на бирже есть, а записи о ней нет.
func (e *Engine) Execute(ctx context.Context, o Order) (*models.Trade, error) {
	trade, err := e.execute(ctx, o)

	var skipErr *SkipError
	switch {
	case errors.As(err, &skipErr):
		reason := SkipReason(err)
		e.observer.ObserveSkip(reason)
		logger.Info("Сделка пропущена", zap.String("symbol", o.Symbol), zap.String("reason", reason))
	case err != nil:
		logger.Error("Ошибка исполнения", zap.String("symbol", o.Symbol), zap.Error(err))
	default:
		e.observer.ObserveTrade(trade)
		logger.Info("Сделка открыта",
			zap.String("id", trade.ID),
			zap.String("symbol", trade.Symbol),
			zap.String("direction", string(trade.Direction)),
			zap.String("mode", string(trade.Mode)),
			zap.Float64("entry", trade.EntryPrice),
			zap.Float64("quantity", trade.Quantity),
			zap.Float64("stop_loss", trade.StopLoss),
			zap.Float64("take_profit", trade.TakeProfit))
	}
	return trade, err
}

func (e *Engine) execute(ctx context.Context, o Order) (*models.Trade, error) {
	direction := o.Decision.Action
	if !direction.Directional() {
		return nil, skip(o.Symbol, ErrNoDirection)
	}

	mode := e.EffectiveMode(o.Mode, o.Decision.Confidence)
	if mode != o.Mode {
		logger.Info("Низкая уверенность, LIVE заменен на PAPER",
			zap.String("symbol", o.Symbol),
			zap.Float64("confidence", o.Decision.Confidence),
			zap.Float64("floor", e.liveFloor))
	}

	// Проверка лимита и размещение одного символа не пересекаются
	unlock := e.locks.Lock(o.Symbol)
	defer unlock()

	open, err := e.store.HasOpenTrade(ctx, o.Symbol, mode)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки открытых сделок: %w", err)
	}
	if open {
		return nil, skip(o.Symbol, ErrPositionOpen)
	}

	entryTime := e.now()
	if mode == models.ModeBacktest {
		entryTime = o.Timestamp
	}

	lossFraction, err := e.dailyLossFraction(ctx, entryTime, o.Balance)
	if err != nil {
		return nil, err
	}
	if !e.risk.SafetyGate(lossFraction) {
		return nil, skip(o.Symbol, ErrSafetyGate)
	}

	stop, err := e.risk.StopLoss(o.Price, direction, o.ATR)
	if err != nil {
		return nil, skip(o.Symbol, err)
	}
	qty := e.risk.PositionSize(o.Balance, o.Price, stop)
	if qty <= 0 {
		return nil, skip(o.Symbol, ErrZeroQuantity)
	}

	trade := &models.Trade{
		ID:         uuid.NewString(),
		Symbol:     o.Symbol,
		Direction:  direction,
		Mode:       mode,
		EntryPrice: o.Price,
		Quantity:   qty,
		StopLoss:   stop,
		TakeProfit: e.risk.TakeProfit(o.Price, stop, direction),
		EntryTime:  entryTime,
		Status:     models.TradeOpen,
	}

	if mode == models.ModeLive {
		if err := e.placeLive(ctx, trade); err != nil {
			return nil, err
		}
	}

	if err := e.store.StoreTrade(ctx, trade); err != nil {
		if mode == models.ModeLive {
			return nil, fmt.Errorf("%w: заявка %s: %v", ErrUnrecorded, trade.VenueOrderID, err)
		}
		return nil, fmt.Errorf("ошибка сохранения сделки: %w", err)
	}
	return trade, nil
}

// placeLive отправляет рыночную заявку и уточняет цену входа по исполнению
func (e *Engine) placeLive(ctx context.Context, trade *models.Trade) error {
	if e.venue == nil {
		return fmt.Errorf("торговая площадка не настроена для режима LIVE")
	}

	conf, err := e.venue.PlaceOrder(ctx, models.OrderRequest{
		Symbol:   trade.Symbol,
		Side:     trade.Direction,
		Type:     models.OrderMarket,
		Quantity: trade.Quantity,
	})
	if err != nil {
		return fmt.Errorf("ошибка размещения заявки: %w", err)
	}

	trade.VenueOrderID = conf.OrderID
	if conf.AvgPrice > 0 {
		trade.EntryPrice = conf.AvgPrice
	}
	return nil
}

// dailyLossFraction - доля убытка за день от баланса на начало дня
func (e *Engine) dailyLossFraction(ctx context.Context, at time.Time, balance float64) (float64, error) {
	y, m, d := at.UTC().Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	pnl, err := e.ledger.RealizedPnL(ctx, startOfDay)
	if err != nil {
		return 0, fmt.Errorf("ошибка расчета дневного результата: %w", err)
	}
	if pnl >= 0 {
		return 0, nil
	}

	loss := -pnl
	if balance+loss <= 0 {
		return 1, nil
	}
	return loss / (balance + loss), nil
}
