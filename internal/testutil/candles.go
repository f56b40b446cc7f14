// Package testutil строит синтетические свечи для тестов.
package testutil

import (
	"time"

	"github.com/skalibog/bfta/pkg/models"
)

// Base - время открытия первой синтетической свечи
var Base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Window строит часовые свечи по ценам закрытия.
// Открытие равно предыдущему закрытию, тени по 0.5% в каждую сторону.
func Window(symbol string, closes []float64, volume float64) models.Window {
	out := make(models.Window, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := prev
		high, low := c, open
		if open > high {
			high, low = open, c
		}
		out[i] = &models.Candle{
			Symbol:    symbol,
			Interval:  "1h",
			OpenTime:  Base.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      high * 1.005,
			Low:       low * 0.995,
			Close:     c,
			Volume:    volume,
			CloseTime: Base.Add(time.Duration(i+1)*time.Hour - time.Millisecond),
		}
		prev = c
	}
	return out
}

// Linear цены от start с шагом step
func Linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Flat n одинаковых цен
func Flat(n int, price float64) []float64 {
	return Linear(n, price, 0)
}
