// Package registry собирает агентов по именам из конфигурации.
package registry

import (
	"fmt"
	"sort"

	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/internal/analysis/funding"
	"github.com/skalibog/bfta/internal/analysis/momentum"
	"github.com/skalibog/bfta/internal/analysis/oianalysis"
	"github.com/skalibog/bfta/internal/analysis/orderbook"
	"github.com/skalibog/bfta/internal/analysis/pattern"
	"github.com/skalibog/bfta/internal/analysis/technical"
	"github.com/skalibog/bfta/internal/analysis/trend"
	"github.com/skalibog/bfta/internal/analysis/volatility"
	"github.com/skalibog/bfta/internal/analysis/volumedelta"
	"github.com/skalibog/bfta/internal/analysis/whale"
	"github.com/skalibog/bfta/internal/config"
)

// Deps - внешние источники данных для агентов, которым мало свечей.
// Нулевое поле допустимо, пока соответствующий агент не включен.
type Deps struct {
	Funding      funding.Source
	OrderBook    orderbook.Source
	OpenInterest oianalysis.Source
}

type constructor func(cfg config.AgentsConfig, deps Deps) (agent.Agent, error)

var constructors = map[string]constructor{
	technical.Name: func(cfg config.AgentsConfig, _ Deps) (agent.Agent, error) {
		return technical.NewAnalyzer(cfg.Technical), nil
	},
	trend.Name: func(config.AgentsConfig, Deps) (agent.Agent, error) {
		return trend.NewAnalyzer(), nil
	},
	volatility.Name: func(config.AgentsConfig, Deps) (agent.Agent, error) {
		return volatility.NewAnalyzer(), nil
	},
	momentum.Name: func(config.AgentsConfig, Deps) (agent.Agent, error) {
		return momentum.NewAnalyzer(), nil
	},
	volumedelta.Name: func(config.AgentsConfig, Deps) (agent.Agent, error) {
		return volumedelta.NewAnalyzer(), nil
	},
	whale.Name: func(config.AgentsConfig, Deps) (agent.Agent, error) {
		return whale.NewAnalyzer(), nil
	},
	pattern.Name: func(config.AgentsConfig, Deps) (agent.Agent, error) {
		return pattern.NewAnalyzer(), nil
	},
	funding.Name: func(cfg config.AgentsConfig, deps Deps) (agent.Agent, error) {
		if deps.Funding == nil {
			return nil, fmt.Errorf("нет источника ставок финансирования")
		}
		return funding.NewAnalyzer(cfg.Funding, deps.Funding), nil
	},
	orderbook.Name: func(cfg config.AgentsConfig, deps Deps) (agent.Agent, error) {
		if deps.OrderBook == nil {
			return nil, fmt.Errorf("нет источника стакана")
		}
		return orderbook.NewAnalyzer(cfg.OrderBook, deps.OrderBook), nil
	},
	oianalysis.Name: func(cfg config.AgentsConfig, deps Deps) (agent.Agent, error) {
		if deps.OpenInterest == nil {
			return nil, fmt.Errorf("нет источника открытого интереса")
		}
		return oianalysis.NewAnalyzer(cfg.OpenInterest, deps.OpenInterest), nil
	},
}

// Names возвращает отсортированный список известных агентов
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build создает агентов из cfg.Enabled в заданном порядке.
// Неизвестное имя или повтор считаются ошибкой конфигурации.
func Build(cfg config.AgentsConfig, deps Deps) ([]agent.Agent, error) {
	agents := make([]agent.Agent, 0, len(cfg.Enabled))
	seen := make(map[string]bool, len(cfg.Enabled))

	for _, name := range cfg.Enabled {
		ctor, ok := constructors[name]
		if !ok {
			return nil, fmt.Errorf("неизвестный агент %q, доступны: %v", name, Names())
		}
		if seen[name] {
			return nil, fmt.Errorf("агент %q указан дважды", name)
		}
		seen[name] = true

		a, err := ctor(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("агент %s: %w", name, err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}
