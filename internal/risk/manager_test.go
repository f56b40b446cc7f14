package risk

import (
	"math"
	"testing"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultManager() *Manager {
	return NewManager(config.RiskConfig{
		RiskPerTrade:      0.01,
		MaxLeverage:       1,
		DailyLossLimit:    0.05,
		ATRMultiplier:     2,
		RewardRatio:       2,
		QuantityPrecision: 6,
	})
}

func TestStopLoss(t *testing.T) {
	m := defaultManager()

	sl, err := m.StopLoss(50000, models.ActionBuy, 250)
	require.NoError(t, err)
	assert.Equal(t, 49500.0, sl)

	sl, err = m.StopLoss(50000, models.ActionSell, 250)
	require.NoError(t, err)
	assert.Equal(t, 50500.0, sl)

	_, err = m.StopLoss(50000, models.ActionBuy, 0)
	assert.ErrorIs(t, err, ErrInvalidATR)

	_, err = m.StopLoss(50000, models.ActionNeutral, 10)
	assert.Error(t, err)
}

func TestStopLoss_RejectsNonFinite(t *testing.T) {
	m := defaultManager()

	for _, atr := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -5} {
		_, err := m.StopLoss(50000, models.ActionBuy, atr)
		assert.ErrorIs(t, err, ErrInvalidATR, "atr %v", atr)
	}
	for _, entry := range []float64{math.NaN(), math.Inf(1), 0} {
		_, err := m.StopLoss(entry, models.ActionSell, 250)
		assert.Error(t, err, "entry %v", entry)
	}
}

func TestPositionSize_NonFiniteDoesNotPanic(t *testing.T) {
	m := defaultManager()
	values := []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, 1000, 50000}
	for _, b := range values {
		for _, e := range values {
			for _, s := range values {
				assert.NotPanics(t, func() {
					qty := m.PositionSize(b, e, s)
					assert.False(t, math.IsNaN(qty) || math.IsInf(qty, 0))
					assert.GreaterOrEqual(t, qty, 0.0)
				})
			}
		}
	}
}

func TestTakeProfit(t *testing.T) {
	m := defaultManager()
	assert.Equal(t, 51000.0, m.TakeProfit(50000, 49500, models.ActionBuy))
	assert.Equal(t, 49000.0, m.TakeProfit(50000, 50500, models.ActionSell))
}

func TestPositionSize(t *testing.T) {
	m := defaultManager()
	tests := []struct {
		name                 string
		balance, entry, stop float64
		want                 float64
	}{
		{"risk one percent", 1000, 50000, 49500, 0.02},
		{"zero price difference", 1000, 50000, 50000, 0},
		{"no balance", 0, 50000, 49500, 0},
		{"negative balance", -10, 50000, 49500, 0},
		{"capped by leverage", 1000, 100, 99.99, 10},
		{"rounded to six places", 1000, 30000, 29999.7, 0.033333},
		{"short side", 1000, 50000, 50500, 0.02},
		{"nan balance", math.NaN(), 50000, 49500, 0},
		{"infinite balance", math.Inf(1), 50000, 49500, 0},
		{"infinite entry", 1000, math.Inf(1), 49500, 0},
		{"nan stop", 1000, 50000, math.NaN(), 0},
		{"infinite stop", 1000, 50000, math.Inf(-1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.PositionSize(tt.balance, tt.entry, tt.stop), 1e-9)
		})
	}
}

func TestSafetyGate(t *testing.T) {
	m := defaultManager()
	assert.True(t, m.SafetyGate(0))
	assert.True(t, m.SafetyGate(0.049))
	assert.False(t, m.SafetyGate(0.05))
	assert.False(t, m.SafetyGate(0.2))
}

func TestATRFallback(t *testing.T) {
	assert.Equal(t, 500.0, ATRFallback(50000))
}
