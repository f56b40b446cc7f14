package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/skalibog/bfta/pkg/models"
	"gorm.io/datatypes"
)

type tradeModel struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Symbol       string  `gorm:"index:idx_trades_symbol_status;size:32;not null"`
	Direction    string  `gorm:"size:8;not null"`
	Mode         string  `gorm:"size:16;not null"`
	EntryPrice   float64 `gorm:"not null"`
	Quantity     float64 `gorm:"not null"`
	StopLoss     float64
	TakeProfit   float64
	EntryTime    time.Time `gorm:"index;not null"`
	ExitPrice    *float64
	ExitTime     *time.Time `gorm:"index"`
	ProfitLoss   *float64
	Status       string `gorm:"index:idx_trades_symbol_status;size:8;not null"`
	VenueOrderID string `gorm:"size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (tradeModel) TableName() string { return "trades" }

type signalModel struct {
	ID         uint           `gorm:"primaryKey"`
	CycleID    string         `gorm:"index;size:36"`
	AgentName  string         `gorm:"index;size:64;not null"`
	Symbol     string         `gorm:"index:idx_signals_symbol_time;size:32;not null"`
	Action     string         `gorm:"size:16;not null"`
	Confidence float64        `gorm:"not null"`
	Metadata   datatypes.JSON `gorm:"type:json"`
	Timestamp  time.Time      `gorm:"index:idx_signals_symbol_time;not null"`
}

func (signalModel) TableName() string { return "signals" }

type decisionModel struct {
	ID         uint      `gorm:"primaryKey"`
	CycleID    string    `gorm:"index;size:36"`
	Symbol     string    `gorm:"index;size:32;not null"`
	Action     string    `gorm:"size:16;not null"`
	Confidence float64   `gorm:"not null"`
	Strategy   string    `gorm:"size:32"`
	Reasoning  string    `gorm:"type:text"`
	Timestamp  time.Time `gorm:"index;not null"`
}

func (decisionModel) TableName() string { return "decisions" }

type weightModel struct {
	AgentName string  `gorm:"primaryKey;size:64"`
	Weight    float64 `gorm:"not null"`
	UpdatedAt time.Time
}

func (weightModel) TableName() string { return "agent_weights" }

func toTradeModel(t *models.Trade) tradeModel {
	m := tradeModel{
		ID:           t.ID,
		Symbol:       t.Symbol,
		Direction:    string(t.Direction),
		Mode:         string(t.Mode),
		EntryPrice:   t.EntryPrice,
		Quantity:     t.Quantity,
		StopLoss:     t.StopLoss,
		TakeProfit:   t.TakeProfit,
		EntryTime:    t.EntryTime.UTC(),
		ExitPrice:    t.ExitPrice,
		ProfitLoss:   t.ProfitLoss,
		Status:       string(t.Status),
		VenueOrderID: t.VenueOrderID,
	}
	if t.ExitTime != nil {
		exit := t.ExitTime.UTC()
		m.ExitTime = &exit
	}
	return m
}

func (m tradeModel) toTrade() *models.Trade {
	return &models.Trade{
		ID:           m.ID,
		Symbol:       m.Symbol,
		Direction:    models.Action(m.Direction),
		Mode:         models.Mode(m.Mode),
		EntryPrice:   m.EntryPrice,
		Quantity:     m.Quantity,
		StopLoss:     m.StopLoss,
		TakeProfit:   m.TakeProfit,
		EntryTime:    m.EntryTime,
		ExitPrice:    m.ExitPrice,
		ExitTime:     m.ExitTime,
		ProfitLoss:   m.ProfitLoss,
		Status:       models.TradeStatus(m.Status),
		VenueOrderID: m.VenueOrderID,
	}
}

func toSignalModel(cycleID string, s models.Signal, at time.Time) signalModel {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		meta = []byte(`{}`)
	}
	return signalModel{
		CycleID:    cycleID,
		AgentName:  s.AgentName,
		Symbol:     s.Symbol,
		Action:     string(s.Action),
		Confidence: s.Confidence,
		Metadata:   datatypes.JSON(meta),
		Timestamp:  at.UTC(),
	}
}
