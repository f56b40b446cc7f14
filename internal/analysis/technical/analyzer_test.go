package technical

import (
	"context"
	"testing"

	"github.com/skalibog/bfta/internal/analysis/agent"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/internal/testutil"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() config.TechnicalConfig {
	return config.TechnicalConfig{RSIPeriod: 14, BBPeriod: 20, ATRPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
}

func TestAnalyze_PublishesIndicators(t *testing.T) {
	a := NewAnalyzer(defaultConfig())
	window := testutil.Window("BTCUSDT", testutil.Linear(100, 100, 1), 10)

	sig, err := a.Analyze(context.Background(), "BTCUSDT", window)
	require.NoError(t, err)

	assert.Equal(t, models.ActionAnalysis, sig.Action)
	assert.Equal(t, Name, sig.AgentName)

	rsi, ok := sig.Float("rsi")
	require.True(t, ok)
	assert.Greater(t, rsi, 70.0)

	atr, ok := sig.Float("atr")
	require.True(t, ok)
	assert.Greater(t, atr, 0.0)

	for _, key := range []string{"macd", "macd_signal", "macd_hist", "bb_width", "bb_position", "price", "ichimoku"} {
		_, ok := sig.Float(key)
		assert.True(t, ok, key)
	}
}

func TestAnalyze_ShortWindow(t *testing.T) {
	a := NewAnalyzer(defaultConfig())
	_, err := a.Analyze(context.Background(), "BTCUSDT", testutil.Window("BTCUSDT", testutil.Linear(10, 100, 1), 10))
	assert.ErrorIs(t, err, agent.ErrInsufficientData)
}

func TestIchimokuScore_AboveCloud(t *testing.T) {
	w := testutil.Window("BTCUSDT", testutil.Linear(80, 100, 1), 10)
	score := ichimokuScore(w.Highs(), w.Lows(), w.Closes())
	assert.Equal(t, 100.0, score)
}
