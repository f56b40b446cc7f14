package pattern

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
		name    string
		closes  []float64
		want    models.Action
		pattern string
	}{
		{
			name:    "double bottom",
			closes:  []float64{110, 108, 106, 104, 102, 100, 102, 104, 106, 108, 110, 108, 106, 104, 102, 100.5, 102, 104, 106},
			want:    models.ActionBuy,
			pattern: "double_bottom",
		},
		{
			name:    "double top",
			closes:  []float64{90, 92, 94, 96, 98, 100, 98, 96, 94, 92, 90, 92, 94, 96, 98, 99.6, 98, 96, 94},
			want:    models.ActionSell,
			pattern: "double_top",
		},
		{
			name:    "no pattern",
			closes:  testutil.Linear(20, 100, 1),
			want:    models.ActionNeutral,
			pattern: "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := NewAnalyzer().Analyze(context.Background(), "BTCUSDT", testutil.Window("BTCUSDT", tt.closes, 1))
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Action)
			assert.Equal(t, tt.pattern, sig.Metadata["pattern"])
		})
	}
}

func TestFindPeaks_KeepsStrongerWithinDistance(t *testing.T) {
	values := []float64{0, 5, 0, 7, 0, 0, 0, 0, 0, 3, 0}
	assert.Equal(t, []int{3, 9}, findPeaks(values, 5, false))
}
