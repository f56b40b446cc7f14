package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/skalibog/bfta/internal/pkg/jsonutil"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Reasoner - внешняя модель рассуждений, отвечает свободным текстом
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Oracle передает решение внешней модели.
// Ошибка вызова, неразборчивый ответ или недопустимые поля дают NEUTRAL с нулевой уверенностью.
type Oracle struct {
	reasoner Reasoner
}

func NewOracle(reasoner Reasoner) *Oracle {
	return &Oracle{reasoner: reasoner}
}

func (o *Oracle) Name() string { return StrategyOracle }

func (o *Oracle) Decide(ctx context.Context, symbol string, signals []models.Signal, weights models.AgentWeights) models.Decision {
	reply, err := o.reasoner.Complete(ctx, BuildPrompt(symbol, signals, weights))
	if err != nil {
		logger.Warn("Модель не ответила, решение NEUTRAL", zap.String("symbol", symbol), zap.Error(err))
		return o.neutral(symbol, "oracle: "+err.Error())
	}

	d, err := ParseReply(symbol, reply)
	if err != nil {
		logger.Warn("Ответ модели не разобран, решение NEUTRAL",
			zap.String("symbol", symbol),
			zap.String("reply", reply),
			zap.Error(err))
		return o.neutral(symbol, "oracle: "+err.Error())
	}
	d.Strategy = o.Name()
	return d
}

func (o *Oracle) neutral(symbol, reason string) models.Decision {
	d := models.NeutralDecision(symbol, reason)
	d.Strategy = o.Name()
	return d
}

const promptTemplate = `You are the Head Trader of a Crypto Hedge Fund.

SYMBOL: %s

CURRENT MARKET DATA (agent signals, weight = historical trust):
%s

TASK:
Analyze the signals, which may conflict.
- ANALYSIS signals carry raw indicator values (RSI, MACD, ATR).
- Directional agents vote BUY or SELL with a confidence.

DECISION LOGIC:
- Strong agreement of trusted agents -> follow it.
- If signals conflict -> NEUTRAL (preserve capital).

Return only JSON: {"action": "BUY|SELL|NEUTRAL", "confidence": 0.0-1.0, "reasoning": "..."}`

// BuildPrompt сериализует сигналы в запрос. Ключи метаданных отсортированы,
// поэтому одинаковый вход дает одинаковый текст.
func BuildPrompt(symbol string, signals []models.Signal, weights models.AgentWeights) string {
	var b strings.Builder
	for _, s := range signals {
		fmt.Fprintf(&b, "- %s: %s (conf %.2f, weight %.2f)", s.AgentName, s.Action, s.Confidence, weights.Get(s.AgentName))
		if len(s.Metadata) > 0 {
			keys := make([]string, 0, len(s.Metadata))
			for k := range s.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, len(keys))
			for i, k := range keys {
				pairs[i] = formatValue(k, s.Metadata[k])
			}
			b.WriteString(" | " + strings.Join(pairs, ", "))
		}
		b.WriteByte('\n')
	}
	return fmt.Sprintf(promptTemplate, symbol, strings.TrimRight(b.String(), "\n"))
}

func formatValue(k string, v any) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%s=%.4f", k, f)
	}
	return fmt.Sprintf("%s=%v", k, v)
}

// ParseReply достает решение из ответа модели
func ParseReply(symbol, reply string) (models.Decision, error) {
	obj, ok := jsonutil.ExtractObject(reply)
	if !ok || !gjson.Valid(obj) {
		return models.Decision{}, fmt.Errorf("в ответе нет JSON объекта")
	}

	parsed := gjson.Parse(obj)

	action, err := models.ParseAction(parsed.Get("action").String())
	if err != nil {
		return models.Decision{}, err
	}
	if action == models.ActionAnalysis {
		return models.Decision{}, fmt.Errorf("решение не может быть %s", action)
	}

	conf := parsed.Get("confidence")
	if conf.Type != gjson.Number {
		return models.Decision{}, fmt.Errorf("нет числового поля confidence")
	}
	if c := conf.Float(); c < 0 || c > 1 {
		return models.Decision{}, fmt.Errorf("confidence вне [0, 1]: %v", c)
	}

	return models.Decision{
		Symbol:     symbol,
		Action:     action,
		Confidence: conf.Float(),
		Reasoning:  parsed.Get("reasoning").String(),
	}, nil
}
