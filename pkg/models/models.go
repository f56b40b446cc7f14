package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Window - окно свечей одного символа в хронологическом порядке
type Window []*Candle

// Last возвращает последнюю свечу окна или nil
func (w Window) Last() *Candle {
	if len(w) == 0 {
		return nil
	}
	return w[len(w)-1]
}

// Closes, Highs, Lows, Opens, Volumes раскладывают окно на ряды для talib
func (w Window) Closes() []float64 {
	return w.series(func(c *Candle) float64 { return c.Close })
}

func (w Window) Highs() []float64 {
	return w.series(func(c *Candle) float64 { return c.High })
}

func (w Window) Lows() []float64 {
	return w.series(func(c *Candle) float64 { return c.Low })
}

func (w Window) Opens() []float64 {
	return w.series(func(c *Candle) float64 { return c.Open })
}

func (w Window) Volumes() []float64 {
	return w.series(func(c *Candle) float64 { return c.Volume })
}

func (w Window) series(pick func(*Candle) float64) []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = pick(c)
	}
	return out
}

// OrderBookLevel представляет уровень стакана
type OrderBookLevel struct {
	Price  string
	Amount string
}

// OrderBook представляет стакан заявок
type OrderBook struct {
	Symbol    string
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// FundingRate представляет ставку финансирования
type FundingRate struct {
	Symbol          string
	Rate            string
	Timestamp       time.Time
	NextFundingTime time.Time
}

// OpenInterest представляет открытый интерес
type OpenInterest struct {
	Symbol    string
	Value     string
	Timestamp time.Time
}
