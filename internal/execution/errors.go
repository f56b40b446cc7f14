package execution

import (
	"errors"
	"fmt"

	"github.com/skalibog/bfta/internal/risk"
)

// Причины, по которым сделка не создается
var (
	ErrNoDirection  = errors.New("решение без направления")
	ErrZeroQuantity = errors.New("нулевой объем позиции")
	ErrSafetyGate   = errors.New("достигнут дневной лимит убытка")
	ErrPositionOpen = errors.New("по символу уже есть открытая сделка")
)

// ErrUnrecorded - заявка исполнена на бирже, но сделка не сохранена
var ErrUnrecorded = errors.New("исполненная заявка не записана")

// SkipError - осознанный отказ от сделки. Сделка не создана, это не сбой.
type SkipError struct {
	Symbol string
	Reason error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s: пропуск: %v", e.Symbol, e.Reason)
}

func (e *SkipError) Unwrap() error { return e.Reason }

func skip(symbol string, reason error) error {
	return &SkipError{Symbol: symbol, Reason: reason}
}

// SkipReason - короткая метка причины пропуска для метрик и отчетов
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrNoDirection):
		return "no_direction"
	case errors.Is(err, ErrZeroQuantity):
		return "zero_quantity"
	case errors.Is(err, ErrSafetyGate):
		return "safety_gate"
	case errors.Is(err, ErrPositionOpen):
		return "position_open"
	case errors.Is(err, risk.ErrInvalidATR):
		return "invalid_atr"
	default:
		return "other"
	}
}
