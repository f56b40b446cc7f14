// Package weights хранит таблицу весов агентов как атомарно подменяемый снимок.
// Писатель один (обучение), читателей много (агрегатор, метрики, UI).
package weights

import (
	"context"
	"sync/atomic"

	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
)

// Loader читает сохраненную таблицу весов
type Loader interface {
	LoadWeights(ctx context.Context) (models.AgentWeights, error)
}

// Store держит последний зафиксированный снимок весов
type Store struct {
	current atomic.Pointer[models.AgentWeights]
}

// NewStore создает хранилище с пустой таблицей (все агенты с весом 1.0)
func NewStore() *Store {
	s := &Store{}
	empty := models.AgentWeights{}
	s.current.Store(&empty)
	return s
}

// Load заполняет хранилище из персистентного слоя. Ошибка загрузки не фатальна:
// остается пустая таблица.
func (s *Store) Load(ctx context.Context, loader Loader) {
	w, err := loader.LoadWeights(ctx)
	if err != nil {
		logger.Warn("Не удалось загрузить веса агентов, используются веса по умолчанию", zap.Error(err))
		return
	}
	s.Replace(w)
	logger.Info("Загружены веса агентов", zap.Int("agents", len(w)))
}

// Snapshot возвращает текущий снимок. Снимок только для чтения.
func (s *Store) Snapshot() models.AgentWeights {
	return *s.current.Load()
}

// Get возвращает вес агента из текущего снимка
func (s *Store) Get(agent string) float64 {
	return s.Snapshot().Get(agent)
}

// Replace копирует таблицу, приводит веса к допустимому диапазону и атомарно публикует ее
func (s *Store) Replace(w models.AgentWeights) {
	next := w.Clone()
	next.Clamp()
	s.current.Store(&next)
}
