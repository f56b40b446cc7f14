package models

import (
	"fmt"
	"strings"
	"time"
)

// Action - направление, которое заявляет агент или агрегатор
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionNeutral  Action = "NEUTRAL"
	ActionAnalysis Action = "ANALYSIS"
)

// ParseAction разбирает действие без учета регистра
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionBuy, ActionSell, ActionNeutral, ActionAnalysis:
		return a, nil
	default:
		return "", fmt.Errorf("неизвестное действие: %q", s)
	}
}

// Sign возвращает +1 для BUY, -1 для SELL и 0 для остальных
func (a Action) Sign() float64 {
	switch a {
	case ActionBuy:
		return 1
	case ActionSell:
		return -1
	default:
		return 0
	}
}

// Directional сообщает, является ли действие торговым направлением
func (a Action) Directional() bool {
	return a == ActionBuy || a == ActionSell
}

// Opposite возвращает противоположное направление, для не-направлений - само действие
func (a Action) Opposite() Action {
	switch a {
	case ActionBuy:
		return ActionSell
	case ActionSell:
		return ActionBuy
	default:
		return a
	}
}

// Signal - мнение одного агента в момент времени. После создания не изменяется.
type Signal struct {
	AgentName  string
	Symbol     string
	Action     Action
	Confidence float64
	Metadata   map[string]any
	Timestamp  time.Time
}

// NewSignal создает сигнал, приводя уверенность к диапазону [0, 1]
func NewSignal(agent, symbol string, action Action, confidence float64, metadata map[string]any) Signal {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Signal{
		AgentName:  agent,
		Symbol:     symbol,
		Action:     action,
		Confidence: ClampConfidence(confidence),
		Metadata:   metadata,
	}
}

// NewNeutralSignal - подстановка для агента, который упал или не уложился в таймаут
func NewNeutralSignal(agent, symbol string, cause error) Signal {
	msg := "unknown"
	if cause != nil {
		msg = cause.Error()
	}
	return NewSignal(agent, symbol, ActionNeutral, 0, map[string]any{"error": msg})
}

// Float читает числовое значение метаданных
func (s Signal) Float(key string) (float64, bool) {
	v, ok := s.Metadata[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ClampConfidence ограничивает уверенность диапазоном [0, 1]. NaN превращается в 0.
func ClampConfidence(c float64) float64 {
	if c != c || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Decision - итоговое решение по символу
type Decision struct {
	Symbol     string
	Action     Action
	Confidence float64
	Reasoning  string
	Strategy   string
	Timestamp  time.Time
}

// NeutralDecision возвращает решение NEUTRAL с нулевой уверенностью
func NeutralDecision(symbol, reasoning string) Decision {
	return Decision{
		Symbol:    symbol,
		Action:    ActionNeutral,
		Reasoning: reasoning,
	}
}

// Веса агентов
const (
	MinWeight     = 0.1
	MaxWeight     = 2.0
	DefaultWeight = 1.0
)

// AgentWeights - таблица доверия к агентам, ключ - имя агента
type AgentWeights map[string]float64

// Get возвращает вес агента или вес по умолчанию
func (w AgentWeights) Get(agent string) float64 {
	if v, ok := w[agent]; ok {
		return v
	}
	return DefaultWeight
}

// Clone возвращает независимую копию таблицы
func (w AgentWeights) Clone() AgentWeights {
	out := make(AgentWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Clamp приводит все веса таблицы к диапазону [MinWeight, MaxWeight]
func (w AgentWeights) Clamp() {
	for k, v := range w {
		w[k] = ClampWeight(v)
	}
}

// ClampWeight ограничивает вес диапазоном [MinWeight, MaxWeight]
func ClampWeight(w float64) float64 {
	if w != w {
		return DefaultWeight
	}
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

// Snapshot - набор сигналов цикла вместе с решением, принятым по ним.
// Время решения служит ключом связи сигналов с исходом сделки.
type Snapshot struct {
	CycleID  string
	Decision Decision
	Signals  []Signal
}
