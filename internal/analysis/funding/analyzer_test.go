package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetFundingRateHistory(ctx context.Context, symbol string, limit int) ([]*models.FundingRate, error) {
	args := m.Called(ctx, symbol, limit)
	rates, _ := args.Get(0).([]*models.FundingRate)
	return rates, args.Error(1)
}

func rates(values ...string) []*models.FundingRate {
	out := make([]*models.FundingRate, len(values))
	for i, v := range values {
		out[i] = &models.FundingRate{Symbol: "BTCUSDT", Rate: v}
	}
	return out
}

func testConfig() config.FundingConfig {
	return config.FundingConfig{Periods: 8, ExtremeThreshold: 0.0005}
}

func TestAnalyze_OverheatedLongsAreBearish(t *testing.T) {
	source := new(mockSource)
	source.On("GetFundingRateHistory", mock.Anything, "BTCUSDT", 8).
		Return(rates("0.001", "0.002", "0.003"), nil)

	sig, err := NewAnalyzer(testConfig(), source).Analyze(context.Background(), "BTCUSDT", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ActionSell, sig.Action)
	assert.InDelta(t, 0.72, sig.Confidence, 1e-9)
	source.AssertExpectations(t)
}

func TestAnalyze_SourceError(t *testing.T) {
	source := new(mockSource)
	source.On("GetFundingRateHistory", mock.Anything, "BTCUSDT", 8).
		Return(nil, errors.New("timeout"))

	_, err := NewAnalyzer(testConfig(), source).Analyze(context.Background(), "BTCUSDT", nil)
	assert.Error(t, err)
}

func TestAnalyze_UnparsableRates(t *testing.T) {
	source := new(mockSource)
	source.On("GetFundingRateHistory", mock.Anything, "BTCUSDT", 8).
		Return(rates("n/a"), nil)

	_, err := NewAnalyzer(testConfig(), source).Analyze(context.Background(), "BTCUSDT", nil)
	assert.Error(t, err)
}
