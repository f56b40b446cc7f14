// Package learner пересчитывает веса агентов по исходам закрытых сделок.
package learner

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
)

// Store - журнал сделок, снимков сигналов и весов
type Store interface {
	ClosedTrades(ctx context.Context, limit int) ([]*models.Trade, error)
	SignalsNear(ctx context.Context, symbol string, ts time.Time, tolerance time.Duration) (map[string]models.Action, error)
	LoadWeights(ctx context.Context) (models.AgentWeights, error)
	SaveWeights(ctx context.Context, w models.AgentWeights) error
}

// Publisher получает новую таблицу после записи
type Publisher interface {
	Replace(w models.AgentWeights)
}

// Observer - метрики весов
type Observer interface {
	SetWeights(w models.AgentWeights)
}

// Report - итог одного прохода обучения
type Report struct {
	Trades  int
	Skipped int
	Updates int
	Weights models.AgentWeights
}

// Judge - единственный писатель таблицы весов
type Judge struct {
	store     Store
	publisher Publisher
	observer  Observer
	rate      float64
	batch     int
	tolerance time.Duration
}

// NewJudge создает обучатель. publisher и observer необязательны.
func NewJudge(cfg config.LearnerConfig, store Store, publisher Publisher, observer Observer) *Judge {
	return &Judge{
		store:     store,
		publisher: publisher,
		observer:  observer,
		rate:      cfg.LearningRate,
		batch:     cfg.BatchSize,
		tolerance: cfg.SignalTolerance,
	}
}

// Learn проходит по последним закрытым сделкам и корректирует веса агентов,
// чьи сигналы были рядом со временем входа. Таблица сохраняется целиком один раз.
func (j *Judge) Learn(ctx context.Context) (Report, error) {
	trades, err := j.store.ClosedTrades(ctx, j.batch)
	if err != nil {
		return Report{}, fmt.Errorf("ошибка чтения закрытых сделок: %w", err)
	}

	current, err := j.store.LoadWeights(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("ошибка чтения весов: %w", err)
	}
	next := current.Clone()

	report := Report{Trades: len(trades)}
	for _, t := range trades {
		pnl, ok := t.PnL()
		if !ok || pnl == 0 {
			report.Skipped++
			continue
		}

		calls, err := j.store.SignalsNear(ctx, t.Symbol, t.EntryTime, j.tolerance)
		if err != nil {
			return Report{}, fmt.Errorf("ошибка чтения сигналов сделки %s: %w", t.ID, err)
		}
		report.Updates += Apply(next, calls, t.Direction, pnl > 0, j.rate)
	}
	// Ограничение один раз после всех поправок, для всей таблицы
	next.Clamp()

	if err := j.store.SaveWeights(ctx, next); err != nil {
		return Report{}, fmt.Errorf("ошибка сохранения весов: %w", err)
	}
	if j.publisher != nil {
		j.publisher.Replace(next)
	}
	if j.observer != nil {
		j.observer.SetWeights(next)
	}

	report.Weights = next
	logger.Info("Веса агентов обновлены",
		zap.Int("trades", report.Trades),
		zap.Int("skipped", report.Skipped),
		zap.Int("updates", report.Updates))
	return report, nil
}

// Apply добавляет поправки одной сделки и возвращает их число.
// Прибыль: совпавший агент +rate, противоположный -rate.
// Убыток: совпавший -rate, противоположный +rate/2.
// NEUTRAL и ANALYSIS не трогаются. Веса не ограничиваются, это делает вызывающий.
func Apply(w models.AgentWeights, calls map[string]models.Action, direction models.Action, won bool, rate float64) int {
	updates := 0
	for agent, action := range calls {
		if !action.Directional() {
			continue
		}
		agree := action == direction

		var delta float64
		switch {
		case won && agree:
			delta = rate
		case won:
			delta = -rate
		case agree:
			delta = -rate
		default:
			delta = rate * 0.5
		}

		w[agent] = w.Get(agent) + delta
		updates++
	}
	return updates
}
