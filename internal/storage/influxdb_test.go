package storage

import (
	"testing"
	"time"

	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestIntervalDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"7x":  time.Hour,
	}
	for interval, want := range tests {
		t.Run(interval, func(t *testing.T) {
			assert.Equal(t, want, IntervalDuration(interval))
		})
	}
}

func TestCandlePoint(t *testing.T) {
	open := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	p := candlePoint(&models.Candle{
		Symbol: "BTCUSDT", Interval: "1h", OpenTime: open,
		Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
	})

	assert.Equal(t, "candles", p.Name())
	assert.Equal(t, open, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"symbol": "BTCUSDT", "interval": "1h"}, tags)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 1.5, fields["close"])
	assert.Equal(t, 10.0, fields["volume"])
}
