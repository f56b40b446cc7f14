// Package scheduler опрашивает агентов параллельно и собирает ровно один сигнал от каждого.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrTimeout агент не уложился в отведенное время
var ErrTimeout = errors.New("превышено время ожидания агента")

// Observer получает длительность и исход каждого вызова агента
type Observer interface {
	ObserveAgent(agent string, elapsed time.Duration, failed bool)
}

type nopObserver struct{}

func (nopObserver) ObserveAgent(string, time.Duration, bool) {}

// Scheduler выполняет fan-out по агентам и fan-in их сигналов
type Scheduler struct {
	agents   []agent.Agent
	timeout  time.Duration
	observer Observer
}

// New создает планировщик. Нулевой timeout отключает ограничение по времени.
func New(agents []agent.Agent, timeout time.Duration, observer Observer) *Scheduler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Scheduler{
		agents:   agents,
		timeout:  timeout,
		observer: observer,
	}
}

// Agents возвращает имена агентов в порядке опроса
func (s *Scheduler) Agents() []string {
	names := make([]string, len(s.agents))
	for i, a := range s.agents {
		names[i] = a.Name()
	}
	return names
}

// Run опрашивает всех агентов по окну символа. Результат всегда содержит по одному
// сигналу на агента в порядке регистрации. Упавший, вернувший ошибку или зависший агент
// заменяется NEUTRAL с нулевой уверенностью и причиной в метаданных.
func (s *Scheduler) Run(ctx context.Context, symbol string, window models.Window) []models.Signal {
	stamp := time.Now().UTC()
	if last := window.Last(); last != nil {
		stamp = last.CloseTime
	}

	signals := make([]models.Signal, len(s.agents))
	g, gctx := errgroup.WithContext(ctx)

	for i, a := range s.agents {
		i, a := i, a
		g.Go(func() error {
			started := time.Now()
			sig, err := s.call(gctx, a, symbol, window)
			s.observer.ObserveAgent(a.Name(), time.Since(started), err != nil)

			if err != nil {
				logger.Warn("Агент не дал сигнала",
					zap.String("agent", a.Name()),
					zap.String("symbol", symbol),
					zap.Error(err))
				sig = models.NewNeutralSignal(a.Name(), symbol, err)
			}

			sig.AgentName = a.Name()
			sig.Symbol = symbol
			sig.Timestamp = stamp
			signals[i] = sig
			// Ошибка агента не должна отменять остальных
			return nil
		})
	}
	_ = g.Wait()

	return signals
}

type result struct {
	signal models.Signal
	err    error
}

// call выполняет агента в отдельной горутине, чтобы агент, игнорирующий контекст,
// не задерживал весь цикл дольше таймаута
func (s *Scheduler) call(ctx context.Context, a agent.Agent, symbol string, window models.Window) (models.Signal, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("паника в агенте: %v", r)}
			}
		}()
		sig, err := a.Analyze(ctx, symbol, window)
		done <- result{signal: sig, err: err}
	}()

	select {
	case r := <-done:
		return r.signal, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Signal{}, ErrTimeout
		}
		return models.Signal{}, ctx.Err()
	}
}
