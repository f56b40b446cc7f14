package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openTrade(id, symbol string, at time.Time) *models.Trade {
	return &models.Trade{
		ID:         id,
		Symbol:     symbol,
		Direction:  models.ActionBuy,
		Mode:       models.ModePaper,
		EntryPrice: 100,
		Quantity:   1,
		StopLoss:   98,
		TakeProfit: 104,
		EntryTime:  at,
		Status:     models.TradeOpen,
	}
}

func TestStore_TradeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tr := openTrade("t1", "BTCUSDT", at)
	require.NoError(t, s.StoreTrade(ctx, tr))

	open, err := s.HasOpenTrade(ctx, "BTCUSDT", models.ModePaper)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = s.HasOpenTrade(ctx, "BTCUSDT", models.ModeLive)
	require.NoError(t, err)
	assert.False(t, open, "бумажная позиция не блокирует реальную")

	tr.Close(104, at.Add(time.Hour))
	require.NoError(t, s.UpdateTrade(ctx, tr))

	open, err = s.HasOpenTrade(ctx, "BTCUSDT", models.ModePaper)
	require.NoError(t, err)
	assert.False(t, open)

	closed, err := s.ClosedTrades(ctx, 50)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	pnl, ok := closed[0].PnL()
	require.True(t, ok)
	assert.Equal(t, 4.0, pnl)
	assert.Equal(t, models.TradeClosed, closed[0].Status)
	assert.True(t, closed[0].EntryTime.Equal(at))
}

func TestStore_RejectsZeroQuantity(t *testing.T) {
	s := newTestStore(t)
	tr := openTrade("t0", "BTCUSDT", time.Now())
	tr.Quantity = 0
	assert.Error(t, s.StoreTrade(context.Background(), tr))
}

func TestStore_UpdateMissingTrade(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateTrade(context.Background(), openTrade("nope", "BTCUSDT", time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ClosedTradesLimitAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		tr := openTrade(id, "ETHUSDT", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.StoreTrade(ctx, tr))
		tr.Close(99, base.Add(time.Duration(i)*time.Hour+time.Minute))
		require.NoError(t, s.UpdateTrade(ctx, tr))
	}

	closed, err := s.ClosedTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "c", closed[0].ID)
	assert.Equal(t, "b", closed[1].ID)
}

func TestStore_RealizedPnL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	pnl, err := s.RealizedPnL(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, pnl)

	old := openTrade("old", "BTCUSDT", day.Add(-2*time.Hour))
	require.NoError(t, s.StoreTrade(ctx, old))
	old.Close(90, day.Add(-time.Hour))
	require.NoError(t, s.UpdateTrade(ctx, old))

	today := openTrade("today", "BTCUSDT", day.Add(time.Hour))
	require.NoError(t, s.StoreTrade(ctx, today))
	today.Close(97, day.Add(2*time.Hour))
	require.NoError(t, s.UpdateTrade(ctx, today))

	pnl, err = s.RealizedPnL(ctx, day)
	require.NoError(t, err)
	assert.InDelta(t, -3.0, pnl, 1e-9)
}

func TestStore_SignalsNearPicksClosestSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := func(ts time.Time, action models.Action) models.Snapshot {
		return models.Snapshot{
			CycleID:  ts.String(),
			Decision: models.Decision{Symbol: "BTCUSDT", Action: action, Timestamp: ts},
			Signals: []models.Signal{
				models.NewSignal("trend", "BTCUSDT", action, 0.8, map[string]any{"adx": 31.0}),
				models.NewSignal("volume", "BTCUSDT", models.ActionNeutral, 0.5, nil),
			},
		}
	}
	require.NoError(t, s.RecordSnapshot(ctx, snap(at.Add(-90*time.Second), models.ActionSell)))
	require.NoError(t, s.RecordSnapshot(ctx, snap(at.Add(10*time.Second), models.ActionBuy)))
	require.NoError(t, s.RecordSnapshot(ctx, snap(at.Add(-10*time.Minute), models.ActionSell)))

	got, err := s.SignalsNear(ctx, "BTCUSDT", at, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Action{
		"trend":  models.ActionBuy,
		"volume": models.ActionNeutral,
	}, got)

	none, err := s.SignalsNear(ctx, "ETHUSDT", at, 2*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_SaveWeightsRewritesTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWeights(ctx, models.AgentWeights{"trend": 1.2, "volume": 0.7}))
	require.NoError(t, s.SaveWeights(ctx, models.AgentWeights{"trend": 1.3}))

	w, err := s.LoadWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AgentWeights{"trend": 1.3}, w)
}
