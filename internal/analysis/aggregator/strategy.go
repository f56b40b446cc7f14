package aggregator

import (
	"context"
	"fmt"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

// Названия стратегий в конфигурации
const (
	StrategyHeuristic = "heuristic"
	StrategyOracle    = "oracle"
	StrategyHybrid    = "hybrid"
)

// Strategy сводит сигналы одного символа к решению.
// Реализации не возвращают ошибок: любая неудача превращается в NEUTRAL.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, symbol string, signals []models.Signal, weights models.AgentWeights) models.Decision
}

// NewStrategy собирает стратегию по имени из конфигурации.
// reasoner нужен только для oracle и hybrid.
func NewStrategy(cfg config.AggregatorConfig, reasoner Reasoner) (Strategy, error) {
	switch cfg.Strategy {
	case StrategyHeuristic, "":
		return NewHeuristic(cfg), nil
	case StrategyOracle:
		if reasoner == nil {
			return nil, fmt.Errorf("стратегия %s требует клиента модели", cfg.Strategy)
		}
		return NewOracle(reasoner), nil
	case StrategyHybrid:
		if reasoner == nil {
			return nil, fmt.Errorf("стратегия %s требует клиента модели", cfg.Strategy)
		}
		return NewHybrid(NewHeuristic(cfg), NewOracle(reasoner)), nil
	default:
		return nil, fmt.Errorf("неизвестная стратегия агрегации: %q", cfg.Strategy)
	}
}
