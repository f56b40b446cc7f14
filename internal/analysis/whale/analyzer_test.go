package whale

import (
	"context"
	"testing"

	"github.com/skalibog/bfta/internal/testutil"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name     string
		lastTo   float64
		volume   float64
		want     models.Action
		wantConf float64
	}{
		{"whale buying", 105, 400, models.ActionBuy, 0.95},
		{"whale selling", 95, 400, models.ActionSell, 0.95},
		{"normal volume", 105, 100, models.ActionNeutral, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := testutil.Window("BTCUSDT", append(testutil.Flat(24, 100), tt.lastTo), 100)
			window.Last().Volume = tt.volume

			sig, err := NewAnalyzer().Analyze(context.Background(), "BTCUSDT", window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Action)
			assert.Equal(t, tt.wantConf, sig.Confidence)
		})
	}
}
