package learner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/internal/weights"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.UseNop()
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ClosedTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	args := m.Called(ctx, limit)
	trades, _ := args.Get(0).([]*models.Trade)
	return trades, args.Error(1)
}

func (m *mockStore) SignalsNear(ctx context.Context, symbol string, ts time.Time, tol time.Duration) (map[string]models.Action, error) {
	args := m.Called(ctx, symbol, ts, tol)
	calls, _ := args.Get(0).(map[string]models.Action)
	return calls, args.Error(1)
}

func (m *mockStore) LoadWeights(ctx context.Context) (models.AgentWeights, error) {
	args := m.Called(ctx)
	w, _ := args.Get(0).(models.AgentWeights)
	return w, args.Error(1)
}

func (m *mockStore) SaveWeights(ctx context.Context, w models.AgentWeights) error {
	return m.Called(ctx, w).Error(0)
}

func learnerConfig() config.LearnerConfig {
	return config.LearnerConfig{LearningRate: 0.1, BatchSize: 50, SignalTolerance: 2 * time.Minute}
}

func closedTrade(symbol string, dir models.Action, pnl float64, entry time.Time) *models.Trade {
	t := &models.Trade{ID: symbol + "-1", Symbol: symbol, Direction: dir, EntryTime: entry, Status: models.TradeOpen}
	t.ProfitLoss = &pnl
	t.Status = models.TradeClosed
	return t
}

func TestLearn_WinningTrade(t *testing.T) {
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := new(mockStore)
	store.On("ClosedTrades", mock.Anything, 50).Return([]*models.Trade{closedTrade("BTCUSDT", models.ActionBuy, 25, entry)}, nil)
	store.On("LoadWeights", mock.Anything).Return(models.AgentWeights{"trend": 1.0}, nil)
	store.On("SignalsNear", mock.Anything, "BTCUSDT", entry, 2*time.Minute).Return(map[string]models.Action{
		"trend":     models.ActionBuy,
		"momentum":  models.ActionSell,
		"technical": models.ActionAnalysis,
		"whale":     models.ActionNeutral,
	}, nil)

	expected := models.AgentWeights{"trend": 1.1, "momentum": 0.9}
	store.On("SaveWeights", mock.Anything, mock.MatchedBy(func(w models.AgentWeights) bool {
		return len(w) == 2 && almost(w["trend"], 1.1) && almost(w["momentum"], 0.9)
	})).Return(nil).Once()

	published := weights.NewStore()
	report, err := NewJudge(learnerConfig(), store, published, nil).Learn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Trades)
	assert.Equal(t, 2, report.Updates)
	assert.InDelta(t, expected["trend"], published.Get("trend"), 1e-9)
	assert.InDelta(t, expected["momentum"], published.Get("momentum"), 1e-9)
	assert.Equal(t, 1.0, published.Get("whale"))
	store.AssertExpectations(t)
}

func TestLearn_LosingTrade(t *testing.T) {
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := new(mockStore)
	store.On("ClosedTrades", mock.Anything, 50).Return([]*models.Trade{closedTrade("ETHUSDT", models.ActionSell, -10, entry)}, nil)
	store.On("LoadWeights", mock.Anything).Return(models.AgentWeights{}, nil)
	store.On("SignalsNear", mock.Anything, "ETHUSDT", entry, 2*time.Minute).Return(map[string]models.Action{
		"trend":   models.ActionSell,
		"pattern": models.ActionBuy,
	}, nil)
	store.On("SaveWeights", mock.Anything, mock.Anything).Return(nil)

	report, err := NewJudge(learnerConfig(), store, nil, nil).Learn(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.9, report.Weights["trend"], 1e-9)
	assert.InDelta(t, 1.05, report.Weights["pattern"], 1e-9)
}

func TestLearn_SkipsFlatAndMissingResults(t *testing.T) {
	flat := closedTrade("BTCUSDT", models.ActionBuy, 0, time.Now())
	missing := &models.Trade{ID: "x", Symbol: "BTCUSDT", Direction: models.ActionBuy, Status: models.TradeClosed}

	store := new(mockStore)
	store.On("ClosedTrades", mock.Anything, 50).Return([]*models.Trade{flat, missing}, nil)
	store.On("LoadWeights", mock.Anything).Return(models.AgentWeights{"trend": 1.3}, nil)
	store.On("SaveWeights", mock.Anything, models.AgentWeights{"trend": 1.3}).Return(nil)

	report, err := NewJudge(learnerConfig(), store, nil, nil).Learn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Updates)
	store.AssertNotCalled(t, "SignalsNear", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLearn_SaveFailureLeavesPublishedTable(t *testing.T) {
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := new(mockStore)
	store.On("ClosedTrades", mock.Anything, 50).Return([]*models.Trade{closedTrade("BTCUSDT", models.ActionBuy, 5, entry)}, nil)
	store.On("LoadWeights", mock.Anything).Return(models.AgentWeights{}, nil)
	store.On("SignalsNear", mock.Anything, "BTCUSDT", entry, 2*time.Minute).Return(map[string]models.Action{"trend": models.ActionBuy}, nil)
	store.On("SaveWeights", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	published := weights.NewStore()
	published.Replace(models.AgentWeights{"trend": 0.5})

	_, err := NewJudge(learnerConfig(), store, published, nil).Learn(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0.5, published.Get("trend"))
}

func TestLearn_ClampsStoredWeightsWithoutTrades(t *testing.T) {
	store := new(mockStore)
	store.On("ClosedTrades", mock.Anything, 50).Return([]*models.Trade{}, nil)
	store.On("LoadWeights", mock.Anything).Return(models.AgentWeights{"x": 3.0, "y": 0.01}, nil)
	store.On("SaveWeights", mock.Anything, models.AgentWeights{"x": models.MaxWeight, "y": models.MinWeight}).Return(nil).Once()

	published := weights.NewStore()
	report, err := NewJudge(learnerConfig(), store, published, nil).Learn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.AgentWeights{"x": models.MaxWeight, "y": models.MinWeight}, report.Weights)
	assert.Equal(t, models.MaxWeight, published.Get("x"))
	store.AssertExpectations(t)
}

func TestLearn_ClampsOnceAfterAllAdjustments(t *testing.T) {
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	win := closedTrade("BTCUSDT", models.ActionBuy, 10, first)
	loss := closedTrade("BTCUSDT", models.ActionBuy, -10, second)

	store := new(mockStore)
	store.On("ClosedTrades", mock.Anything, 50).Return([]*models.Trade{win, loss}, nil)
	store.On("LoadWeights", mock.Anything).Return(models.AgentWeights{"trend": 1.95}, nil)
	store.On("SignalsNear", mock.Anything, "BTCUSDT", mock.Anything, 2*time.Minute).
		Return(map[string]models.Action{"trend": models.ActionBuy}, nil)
	store.On("SaveWeights", mock.Anything, mock.Anything).Return(nil)

	report, err := NewJudge(learnerConfig(), store, nil, nil).Learn(context.Background())
	require.NoError(t, err)

	// +0.1 и -0.1 от 1.95 без промежуточного ограничения на 2.0
	assert.InDelta(t, 1.95, report.Weights["trend"], 1e-9)
	assert.Equal(t, 2, report.Updates)
}

func TestApply_AccumulatesRawDeltas(t *testing.T) {
	w := models.AgentWeights{"trend": 1.95, "momentum": 0.12}
	calls := map[string]models.Action{"trend": models.ActionBuy, "momentum": models.ActionSell}

	Apply(w, calls, models.ActionBuy, true, 0.1)
	assert.InDelta(t, 2.05, w["trend"], 1e-9)
	assert.InDelta(t, 0.02, w["momentum"], 1e-9)

	w.Clamp()
	assert.Equal(t, models.MaxWeight, w["trend"])
	assert.Equal(t, models.MinWeight, w["momentum"])
}

func TestLearn_WeightsStayInRange(t *testing.T) {
	properties := gopter.NewProperties(nil)

	all := []models.Action{models.ActionBuy, models.ActionSell, models.ActionNeutral, models.ActionAnalysis}
	actions := gen.IntRange(0, len(all)-1).Map(func(i int) models.Action { return all[i] })

	properties.Property("после прохода все веса в [0.1, 2.0]", prop.ForAll(
		func(start float64, stale float64, call models.Action, won bool, rounds int) bool {
			w := models.AgentWeights{"agent": start, "stale": stale}
			for i := 0; i < rounds; i++ {
				Apply(w, map[string]models.Action{"agent": call}, models.ActionBuy, won, 0.1)
			}
			w.Clamp()
			for _, v := range w {
				if v < models.MinWeight || v > models.MaxWeight {
					return false
				}
			}
			return true
		},
		gen.Float64Range(models.MinWeight, models.MaxWeight),
		gen.Float64Range(-5, 5),
		actions,
		gen.Bool(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func almost(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
