package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode - режим исполнения
type Mode string

const (
	ModeBacktest Mode = "BACKTEST"
	ModePaper    Mode = "PAPER"
	ModeLive     Mode = "LIVE"
)

// ParseMode разбирает режим без учета регистра
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeBacktest, ModePaper, ModeLive:
		return m, nil
	default:
		return "", fmt.Errorf("неизвестный режим: %q", s)
	}
}

// TradeStatus - состояние сделки
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// Trade - запись об одной исполненной заявке
type Trade struct {
	ID           string
	Symbol       string
	Direction    Action
	Mode         Mode
	EntryPrice   float64
	Quantity     float64
	StopLoss     float64
	TakeProfit   float64
	EntryTime    time.Time
	ExitPrice    *float64
	ExitTime     *time.Time
	ProfitLoss   *float64
	Status       TradeStatus
	VenueOrderID string
}

// PnL возвращает результат закрытой сделки и признак его наличия
func (t *Trade) PnL() (float64, bool) {
	if t.ProfitLoss == nil {
		return 0, false
	}
	return *t.ProfitLoss, true
}

// Close переводит сделку в CLOSED и считает результат
func (t *Trade) Close(price float64, at time.Time) {
	pnl := (price - t.EntryPrice) * t.Quantity * t.Direction.Sign()
	t.ExitPrice = &price
	t.ExitTime = &at
	t.ProfitLoss = &pnl
	t.Status = TradeClosed
}

// CycleReport - итог одного цикла по символу
type CycleReport struct {
	CycleID   string
	Symbol    string
	Price     float64
	Signals   []Signal
	Decision  Decision
	Trade     *Trade
	Skip      string
	Error     string
	Timestamp time.Time
}

// OrderType - тип заявки на бирже
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderRequest - заявка для торговой площадки
type OrderRequest struct {
	Symbol   string
	Side     Action
	Type     OrderType
	Quantity float64
	// Price нужен только для LIMIT
	Price float64
}

// OrderConfirmation - подтверждение площадки
type OrderConfirmation struct {
	OrderID  string
	Status   string
	AvgPrice float64
}
