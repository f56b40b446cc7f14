// Package engine связывает данные, агентов, агрегатор, исполнение и обучение в торговый цикл.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/bfta/internal/analysis/aggregator"
	"github.com/skalibog/bfta/internal/analysis/scheduler"
	"github.com/skalibog/bfta/internal/analysis/volatility"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/internal/execution"
	"github.com/skalibog/bfta/internal/learner"
	"github.com/skalibog/bfta/internal/risk"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketData отдает окно свечей. Реализуют клиент биржи и InfluxDB.
type MarketData interface {
	GetWindow(ctx context.Context, symbol, interval string, length int) (models.Window, error)
}

// Settler закрывает бумажные сделки по бару
type Settler interface {
	Settle(ctx context.Context, symbol string, bar *models.Candle) ([]*models.Trade, error)
}

// Learner пересчитывает веса агентов
type Learner interface {
	Learn(ctx context.Context) (learner.Report, error)
}

// Reporter получает итоги цикла (терминальный интерфейс, лог)
type Reporter interface {
	Report(reports []models.CycleReport)
}

// Observer - метрики цикла
type Observer interface {
	ObserveCycle(elapsed time.Duration)
}

// Deps - компоненты торгового цикла. Settler, Learner, Reporter и Observer необязательны.
type Deps struct {
	Market     MarketData
	Scheduler  *scheduler.Scheduler
	Aggregator *aggregator.Aggregator
	Executor   *execution.Engine
	Balance    execution.BalanceSource
	Settler    Settler
	Learner    Learner
	Reporter   Reporter
	Observer   Observer
}

// Trader выполняет торговые циклы
type Trader struct {
	cfg  config.TradingConfig
	mode models.Mode
	Deps
}

// NewTrader создает торговый цикл для режима mode
func NewTrader(cfg config.TradingConfig, mode models.Mode, deps Deps) *Trader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = len(cfg.Symbols)
	}
	return &Trader{cfg: cfg, mode: mode, Deps: deps}
}

// Run запускает циклы каждые interval до отмены контекста. Первый цикл сразу.
func (t *Trader) Run(ctx context.Context, interval time.Duration) error {
	logger.Info("Торговый цикл запущен",
		zap.String("mode", string(t.mode)),
		zap.Strings("symbols", t.cfg.Symbols),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t.RunCycle(ctx)

		select {
		case <-ctx.Done():
			logger.Info("Торговый цикл остановлен")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle обрабатывает все символы пачками по BatchSize. Символы пачки идут
// параллельно, между пачками пауза BatchPause. Символ без данных пропускается.
// После всех пачек один раз запускается обучение весов.
func (t *Trader) RunCycle(ctx context.Context) []models.CycleReport {
	started := time.Now()
	cycleID := uuid.NewString()

	var reports []models.CycleReport
	symbols := t.cfg.Symbols
	for start := 0; start < len(symbols); start += t.cfg.BatchSize {
		if start > 0 && !sleep(ctx, t.cfg.BatchPause) {
			break
		}
		end := min(start+t.cfg.BatchSize, len(symbols))
		reports = append(reports, t.runBatch(ctx, cycleID, symbols[start:end])...)
	}

	t.learn(ctx)

	elapsed := time.Since(started)
	if t.Observer != nil {
		t.Observer.ObserveCycle(elapsed)
	}
	if t.Reporter != nil {
		t.Reporter.Report(reports)
	}
	logger.Info("Цикл завершен",
		zap.String("cycle", cycleID),
		zap.Int("symbols", len(reports)),
		zap.Duration("elapsed", elapsed))
	return reports
}

func (t *Trader) runBatch(ctx context.Context, cycleID string, symbols []string) []models.CycleReport {
	slots := make([]*models.CycleReport, len(symbols))

	var g errgroup.Group
	for i, symbol := range symbols {
		g.Go(func() error {
			window, err := t.fetch(ctx, symbol)
			if err != nil {
				logger.Warn("Нет данных по символу, пропуск",
					zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			// В LIVE здесь закрываются только сделки, пониженные до PAPER
			t.settle(ctx, symbol, window.Last())
			report := t.process(ctx, cycleID, symbol, window, t.mode, time.Time{})
			slots[i] = &report
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.CycleReport, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (t *Trader) fetch(ctx context.Context, symbol string) (models.Window, error) {
	if t.cfg.DataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.DataTimeout)
		defer cancel()
	}
	window, err := t.Market.GetWindow(ctx, symbol, t.cfg.Interval, t.cfg.WindowLength)
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("пустое окно свечей")
	}
	return window, nil
}

// process проводит один символ через агентов, агрегатор и исполнение.
// at - время решения, нулевое означает текущее.
func (t *Trader) process(ctx context.Context, cycleID, symbol string, window models.Window, mode models.Mode, at time.Time) models.CycleReport {
	last := window.Last()
	signals := t.Scheduler.Run(ctx, symbol, window)
	decision := t.Aggregator.Aggregate(ctx, cycleID, symbol, signals, at)

	report := models.CycleReport{
		CycleID:   cycleID,
		Symbol:    symbol,
		Price:     last.Close,
		Signals:   signals,
		Decision:  decision,
		Timestamp: decision.Timestamp,
	}

	balance, err := t.Balance.Balance(ctx)
	if err != nil {
		report.Error = fmt.Sprintf("ошибка получения баланса: %v", err)
		logger.Error("Ошибка получения баланса", zap.String("symbol", symbol), zap.Error(err))
		return report
	}

	trade, err := t.Executor.Execute(ctx, execution.Order{
		Decision:  decision,
		Symbol:    symbol,
		Price:     last.Close,
		ATR:       ATR(signals, last.Close),
		Balance:   balance,
		Mode:      mode,
		Timestamp: last.CloseTime,
	})

	var skipErr *execution.SkipError
	switch {
	case errors.As(err, &skipErr):
		report.Skip = execution.SkipReason(err)
	case err != nil:
		report.Error = err.Error()
	default:
		report.Trade = trade
	}
	return report
}

func (t *Trader) settle(ctx context.Context, symbol string, bar *models.Candle) []*models.Trade {
	if t.Settler == nil {
		return nil
	}
	closed, err := t.Settler.Settle(ctx, symbol, bar)
	if err != nil {
		logger.Error("Ошибка закрытия сделок", zap.String("symbol", symbol), zap.Error(err))
	}
	return closed
}

func (t *Trader) learn(ctx context.Context) {
	if t.Learner == nil {
		return
	}
	if _, err := t.Learner.Learn(ctx); err != nil {
		logger.Error("Ошибка обучения весов", zap.Error(err))
	}
}

// ATR берет волатильность из метаданных агента volatility, затем из любого
// ANALYSIS сигнала. Если ни один агент ее не дал, используется 1% цены.
func ATR(signals []models.Signal, price float64) float64 {
	if v, ok := atrFrom(signals, func(s models.Signal) bool { return s.AgentName == volatility.Name }); ok {
		return v
	}
	if v, ok := atrFrom(signals, func(s models.Signal) bool { return s.Action == models.ActionAnalysis }); ok {
		return v
	}
	return risk.ATRFallback(price)
}

func atrFrom(signals []models.Signal, match func(models.Signal) bool) (float64, bool) {
	for _, s := range signals {
		if !match(s) {
			continue
		}
		if v, ok := s.Float("atr"); ok && v > 0 && !math.IsInf(v, 0) {
			return v, true
		}
	}
	return 0, false
}

// sleep ждет d или отмены контекста. false - контекст отменен.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
