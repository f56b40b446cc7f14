package trend

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
		name   string
		closes []float64
		want   models.Action
	}{
		{"uptrend", testutil.Linear(60, 100, 2), models.ActionBuy},
		{"downtrend", testutil.Linear(60, 300, -2), models.ActionSell},
		{"flat", testutil.Flat(60, 100), models.ActionNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := NewAnalyzer().Analyze(context.Background(), "ETHUSDT", testutil.Window("ETHUSDT", tt.closes, 10))
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Action)
			if tt.want.Directional() {
				assert.GreaterOrEqual(t, sig.Confidence, 0.6)
			}
		})
	}
}
