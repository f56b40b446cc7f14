package execution

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/internal/risk"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) StoreTrade(ctx context.Context, t *models.Trade) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockStore) HasOpenTrade(ctx context.Context, symbol string, mode models.Mode) (bool, error) {
	args := m.Called(ctx, symbol, mode)
	return args.Bool(0), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) RealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(float64), args.Error(1)
}

type mockVenue struct {
	mock.Mock
}

func (m *mockVenue) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderConfirmation, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.OrderConfirmation), args.Error(1)
}

func riskConfig() config.RiskConfig {
	return config.RiskConfig{
		RiskPerTrade:        0.01,
		MaxLeverage:         1,
		DailyLossLimit:      0.05,
		ATRMultiplier:       2,
		RewardRatio:         2,
		QuantityPrecision:   6,
		LiveConfidenceFloor: 0.7,
	}
}

var fixedNow = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

func newEngine(store *mockStore, ledger *mockLedger, venue Venue) *Engine {
	e := NewEngine(riskConfig(), store, ledger, venue, nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

func buyOrder(mode models.Mode, confidence float64) Order {
	return Order{
		Decision: models.Decision{Symbol: "BTCUSDT", Action: models.ActionBuy, Confidence: confidence},
		Symbol:   "BTCUSDT",
		Price:    50000,
		ATR:      250,
		Balance:  1000,
		Mode:     mode,
	}
}

func happyStore() *mockStore {
	s := new(mockStore)
	s.On("HasOpenTrade", mock.Anything, "BTCUSDT", mock.Anything).Return(false, nil)
	s.On("StoreTrade", mock.Anything, mock.Anything).Return(nil)
	return s
}

func flatLedger() *mockLedger {
	l := new(mockLedger)
	l.On("RealizedPnL", mock.Anything, mock.Anything).Return(0.0, nil)
	return l
}

func TestExecute_Paper(t *testing.T) {
	store := happyStore()
	trade, err := newEngine(store, flatLedger(), nil).Execute(context.Background(), buyOrder(models.ModePaper, 0.9))
	require.NoError(t, err)

	assert.Equal(t, models.ModePaper, trade.Mode)
	assert.Equal(t, models.TradeOpen, trade.Status)
	assert.Equal(t, fixedNow, trade.EntryTime)
	assert.Equal(t, 49500.0, trade.StopLoss)
	assert.Equal(t, 51000.0, trade.TakeProfit)
	assert.Equal(t, 0.02, trade.Quantity)
	assert.NotEmpty(t, trade.ID)
	store.AssertCalled(t, "StoreTrade", mock.Anything, trade)
}

func TestExecute_BacktestUsesBarTime(t *testing.T) {
	barTime := time.Date(2023, 1, 2, 3, 0, 0, 0, time.UTC)
	ledger := new(mockLedger)
	ledger.On("RealizedPnL", mock.Anything, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)).Return(0.0, nil)

	o := buyOrder(models.ModeBacktest, 0.9)
	o.Timestamp = barTime

	trade, err := newEngine(happyStore(), ledger, nil).Execute(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, barTime, trade.EntryTime)
	assert.Equal(t, models.ModeBacktest, trade.Mode)
	ledger.AssertExpectations(t)
}

func TestExecute_LiveLowConfidenceActsAsPaper(t *testing.T) {
	venue := new(mockVenue)
	trade, err := newEngine(happyStore(), flatLedger(), venue).Execute(context.Background(), buyOrder(models.ModeLive, 0.5))
	require.NoError(t, err)

	paper, err := newEngine(happyStore(), flatLedger(), nil).Execute(context.Background(), buyOrder(models.ModePaper, 0.5))
	require.NoError(t, err)

	assert.Equal(t, models.ModePaper, trade.Mode)
	assert.Equal(t, paper.Quantity, trade.Quantity)
	assert.Equal(t, paper.EntryTime, trade.EntryTime)
	assert.Empty(t, trade.VenueOrderID)
	venue.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestExecute_LowConfidenceTradeDoesNotBlockLive(t *testing.T) {
	store := new(mockStore)
	store.On("HasOpenTrade", mock.Anything, "BTCUSDT", models.ModePaper).Return(true, nil)
	store.On("HasOpenTrade", mock.Anything, "BTCUSDT", models.ModeLive).Return(false, nil)
	store.On("StoreTrade", mock.Anything, mock.Anything).Return(nil)

	venue := new(mockVenue)
	venue.On("PlaceOrder", mock.Anything, mock.Anything).Return(models.OrderConfirmation{OrderID: "9"}, nil)

	e := newEngine(store, flatLedger(), venue)

	_, err := e.Execute(context.Background(), buyOrder(models.ModeLive, 0.5))
	assert.ErrorIs(t, err, ErrPositionOpen)

	trade, err := e.Execute(context.Background(), buyOrder(models.ModeLive, 0.95))
	require.NoError(t, err)
	assert.Equal(t, models.ModeLive, trade.Mode)
	venue.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestExecute_LivePlacesOrderFirst(t *testing.T) {
	venue := new(mockVenue)
	venue.On("PlaceOrder", mock.Anything, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.ActionBuy, Type: models.OrderMarket, Quantity: 0.02,
	}).Return(models.OrderConfirmation{OrderID: "42", Status: "FILLED", AvgPrice: 50010}, nil)

	trade, err := newEngine(happyStore(), flatLedger(), venue).Execute(context.Background(), buyOrder(models.ModeLive, 0.9))
	require.NoError(t, err)
	assert.Equal(t, models.ModeLive, trade.Mode)
	assert.Equal(t, "42", trade.VenueOrderID)
	assert.Equal(t, 50010.0, trade.EntryPrice)
	venue.AssertExpectations(t)
}

func TestExecute_LiveVenueFailureWritesNothing(t *testing.T) {
	venue := new(mockVenue)
	venue.On("PlaceOrder", mock.Anything, mock.Anything).Return(models.OrderConfirmation{}, errors.New("insufficient margin"))
	store := new(mockStore)
	store.On("HasOpenTrade", mock.Anything, "BTCUSDT", mock.Anything).Return(false, nil)

	trade, err := newEngine(store, flatLedger(), venue).Execute(context.Background(), buyOrder(models.ModeLive, 0.9))
	require.Error(t, err)
	assert.Nil(t, trade)

	var skipErr *SkipError
	assert.False(t, errors.As(err, &skipErr))
	store.AssertNotCalled(t, "StoreTrade", mock.Anything, mock.Anything)
}

func TestExecute_LiveStoreFailureIsReported(t *testing.T) {
	venue := new(mockVenue)
	venue.On("PlaceOrder", mock.Anything, mock.Anything).Return(models.OrderConfirmation{OrderID: "7"}, nil)
	store := new(mockStore)
	store.On("HasOpenTrade", mock.Anything, "BTCUSDT", mock.Anything).Return(false, nil)
	store.On("StoreTrade", mock.Anything, mock.Anything).Return(errors.New("database is locked"))

	_, err := newEngine(store, flatLedger(), venue).Execute(context.Background(), buyOrder(models.ModeLive, 0.9))
	assert.ErrorIs(t, err, ErrUnrecorded)
	assert.Contains(t, err.Error(), "7")
}

func TestExecute_Skips(t *testing.T) {
	tests := []struct {
		name   string
		order  func() Order
		open   bool
		pnl    float64
		reason error
	}{
		{
			name:   "neutral decision",
			order:  func() Order { o := buyOrder(models.ModePaper, 0.9); o.Decision.Action = models.ActionNeutral; return o },
			reason: ErrNoDirection,
		},
		{
			name:   "zero balance",
			order:  func() Order { o := buyOrder(models.ModePaper, 0.9); o.Balance = 0; return o },
			reason: ErrZeroQuantity,
		},
		{
			name:   "open position",
			order:  func() Order { return buyOrder(models.ModePaper, 0.9) },
			open:   true,
			reason: ErrPositionOpen,
		},
		{
			name:   "daily loss limit",
			order:  func() Order { return buyOrder(models.ModePaper, 0.9) },
			pnl:    -60,
			reason: ErrSafetyGate,
		},
		{
			name:   "missing volatility",
			order:  func() Order { o := buyOrder(models.ModePaper, 0.9); o.ATR = 0; return o },
			reason: risk.ErrInvalidATR,
		},
		{
			name:   "infinite volatility",
			order:  func() Order { o := buyOrder(models.ModePaper, 0.9); o.ATR = math.Inf(1); return o },
			reason: risk.ErrInvalidATR,
		},
		{
			name:   "nan balance",
			order:  func() Order { o := buyOrder(models.ModePaper, 0.9); o.Balance = math.NaN(); return o },
			reason: ErrZeroQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			store.On("HasOpenTrade", mock.Anything, "BTCUSDT", mock.Anything).Return(tt.open, nil)
			ledger := new(mockLedger)
			ledger.On("RealizedPnL", mock.Anything, mock.Anything).Return(tt.pnl, nil)

			trade, err := newEngine(store, ledger, nil).Execute(context.Background(), tt.order())
			assert.Nil(t, trade)

			var skipErr *SkipError
			require.True(t, errors.As(err, &skipErr))
			assert.ErrorIs(t, err, tt.reason)
			store.AssertNotCalled(t, "StoreTrade", mock.Anything, mock.Anything)
		})
	}
}

func TestExecute_LedgerFailureIsNotASkip(t *testing.T) {
	store := new(mockStore)
	store.On("HasOpenTrade", mock.Anything, "BTCUSDT", mock.Anything).Return(false, nil)
	ledger := new(mockLedger)
	ledger.On("RealizedPnL", mock.Anything, mock.Anything).Return(0.0, errors.New("io"))

	_, err := newEngine(store, ledger, nil).Execute(context.Background(), buyOrder(models.ModePaper, 0.9))
	require.Error(t, err)
	var skipErr *SkipError
	assert.False(t, errors.As(err, &skipErr))
}

// memStore помнит открытые сделки, чтобы проверить сериализацию по символу
type memStore struct {
	mu     sync.Mutex
	open   map[string]bool
	stored int32
}

func (m *memStore) HasOpenTrade(_ context.Context, symbol string, _ models.Mode) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[symbol], nil
}

func (m *memStore) StoreTrade(_ context.Context, t *models.Trade) error {
	// Окно между проверкой и записью
	time.Sleep(5 * time.Millisecond)
	m.mu.Lock()
	m.open[t.Symbol] = true
	m.mu.Unlock()
	atomic.AddInt32(&m.stored, 1)
	return nil
}

func TestExecute_SerializesSameSymbol(t *testing.T) {
	store := &memStore{open: map[string]bool{}}
	e := NewEngine(riskConfig(), store, flatLedger(), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Execute(context.Background(), buyOrder(models.ModePaper, 0.9))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&store.stored))
}

func TestPaperWallet(t *testing.T) {
	w := NewPaperWallet(0)
	b, err := w.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultPaperBalance, b)

	w.Credit(-250)
	w.Credit(100)
	b, _ = w.Balance(context.Background())
	assert.Equal(t, 9850.0, b)
}
