package aggregator

import (
	"context"
	"time"

	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// WeightSource - текущий снимок весов агентов
type WeightSource interface {
	Snapshot() models.AgentWeights
}

// SnapshotRecorder сохраняет сигналы цикла вместе с решением
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, snap models.Snapshot) error
}

// Observer получает каждое принятое решение и ошибки записи
type Observer interface {
	ObserveDecision(d models.Decision)
	ObserveRecordError()
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(models.Decision) {}
func (nopObserver) ObserveRecordError()             {}

// Aggregator объединяет сигналы агентов в решение и сохраняет снимок для обучения весов
type Aggregator struct {
	strategy  Strategy
	weights   WeightSource
	recorders []SnapshotRecorder
	observer  Observer
}

// NewAggregator создает агрегатор. observer может быть nil.
func NewAggregator(strategy Strategy, weights WeightSource, observer Observer, recorders ...SnapshotRecorder) *Aggregator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Aggregator{
		strategy:  strategy,
		weights:   weights,
		recorders: recorders,
		observer:  observer,
	}
}

// Strategy возвращает имя активной стратегии
func (a *Aggregator) Strategy() string { return a.strategy.Name() }

// Aggregate принимает решение по сигналам символа. at - время решения
// (время бара в бэктесте), нулевое значение заменяется текущим временем.
// Ошибки записи снимка логируются и не влияют на решение.
func (a *Aggregator) Aggregate(ctx context.Context, cycleID, symbol string, signals []models.Signal, at time.Time) models.Decision {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	decision := a.strategy.Decide(ctx, symbol, signals, a.weights.Snapshot())
	decision.Symbol = symbol
	decision.Timestamp = at
	a.observer.ObserveDecision(decision)

	logger.Info("Решение принято",
		zap.String("cycle", cycleID),
		zap.String("symbol", symbol),
		zap.String("action", string(decision.Action)),
		zap.Float64("confidence", decision.Confidence),
		zap.String("strategy", decision.Strategy),
		zap.String("reasoning", decision.Reasoning))

	snap := models.Snapshot{CycleID: cycleID, Decision: decision, Signals: signals}
	var errs error
	for _, r := range a.recorders {
		errs = multierr.Append(errs, r.RecordSnapshot(ctx, snap))
	}
	if errs != nil {
		a.observer.ObserveRecordError()
		logger.Error("Ошибка сохранения снимка сигналов",
			zap.String("symbol", symbol),
			zap.Errors("errors", multierr.Errors(errs)))
	}

	return decision
}
