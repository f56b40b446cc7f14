package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

// BinanceClient клиент для взаимодействия с фьючерсами Binance.
// Служит источником рыночных данных и торговой площадкой для режима LIVE.
type BinanceClient struct {
	futures        *futures.Client
	quoteAsset     string
	qtyPrecision   int32
	pricePrecision int32
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig, qtyPrecision int32) *BinanceClient {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	return &BinanceClient{
		futures:        futures.NewClient(cfg.APIKey, cfg.APISecret),
		quoteAsset:     "USDT",
		qtyPrecision:   qtyPrecision,
		pricePrecision: 2,
	}
}

// GetWindow получает окно свечей в хронологическом порядке
func (c *BinanceClient) GetWindow(ctx context.Context, symbol, interval string, length int) (models.Window, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(length).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	window := make(models.Window, 0, len(klines))
	for _, k := range klines {
		candle, err := klineToCandle(symbol, interval, k)
		if err != nil {
			return nil, err
		}
		window = append(window, candle)
	}
	return window, nil
}

func klineToCandle(symbol, interval string, k *futures.Kline) (*models.Candle, error) {
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга свечи %s: %w", symbol, err)
		}
		vals[i] = v
	}
	return &models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		CloseTime: time.UnixMilli(k.CloseTime).UTC(),
	}, nil
}

// GetOrderBook получает стакан заявок
func (c *BinanceClient) GetOrderBook(ctx context.Context, symbol string, limit int) (*models.OrderBook, error) {
	ob, err := c.futures.NewDepthService().
		Symbol(symbol).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стакана: %w", err)
	}

	orderBook := &models.OrderBook{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bids:      make([]models.OrderBookLevel, len(ob.Bids)),
		Asks:      make([]models.OrderBookLevel, len(ob.Asks)),
	}
	for i, bid := range ob.Bids {
		orderBook.Bids[i] = models.OrderBookLevel{Price: bid.Price, Amount: bid.Quantity}
	}
	for i, ask := range ob.Asks {
		orderBook.Asks[i] = models.OrderBookLevel{Price: ask.Price, Amount: ask.Quantity}
	}
	return orderBook, nil
}

// GetFundingRate получает текущую ставку финансирования
func (c *BinanceClient) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	rates, err := c.futures.NewPremiumIndexService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ставки финансирования: %w", err)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("не найдены данные о ставке финансирования для %s", symbol)
	}

	return &models.FundingRate{
		Symbol:          symbol,
		Rate:            rates[0].LastFundingRate,
		Timestamp:       time.Now(),
		NextFundingTime: time.UnixMilli(rates[0].NextFundingTime),
	}, nil
}

// GetFundingRateHistory получает историю ставок финансирования, старые первыми
func (c *BinanceClient) GetFundingRateHistory(ctx context.Context, symbol string, limit int) ([]*models.FundingRate, error) {
	rates, err := c.futures.NewFundingRateService().
		Symbol(symbol).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории ставок финансирования: %w", err)
	}

	out := make([]*models.FundingRate, 0, len(rates))
	for _, r := range rates {
		out = append(out, &models.FundingRate{
			Symbol:    symbol,
			Rate:      r.FundingRate,
			Timestamp: time.UnixMilli(r.FundingTime),
		})
	}
	return out, nil
}

// GetOpenInterestHistory получает историю открытого интереса, старые первыми
func (c *BinanceClient) GetOpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]*models.OpenInterest, error) {
	stats, err := c.futures.NewOpenInterestStatisticsService().
		Symbol(symbol).
		Period(period).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения открытого интереса: %w", err)
	}

	out := make([]*models.OpenInterest, 0, len(stats))
	for _, s := range stats {
		out = append(out, &models.OpenInterest{
			Symbol:    symbol,
			Value:     s.SumOpenInterest,
			Timestamp: time.UnixMilli(s.Timestamp),
		})
	}
	return out, nil
}

// PlaceOrder отправляет заявку на биржу
func (c *BinanceClient) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderConfirmation, error) {
	side := futures.SideTypeBuy
	if req.Side == models.ActionSell {
		side = futures.SideTypeSell
	}

	qty := decimal.NewFromFloat(req.Quantity).Truncate(c.qtyPrecision)
	if !qty.IsPositive() {
		return models.OrderConfirmation{}, fmt.Errorf("неверное количество заявки: %v", req.Quantity)
	}

	svc := c.futures.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(qty.String())

	switch req.Type {
	case models.OrderLimit:
		if req.Price <= 0 {
			return models.OrderConfirmation{}, fmt.Errorf("лимитная заявка без цены")
		}
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(decimal.NewFromFloat(req.Price).Round(c.pricePrecision).String())
	default:
		svc = svc.Type(futures.OrderTypeMarket)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return models.OrderConfirmation{}, fmt.Errorf("ошибка размещения заявки %s: %w", req.Symbol, err)
	}

	avg, _ := decimal.NewFromString(resp.AvgPrice)
	avgPrice, _ := avg.Float64()
	return models.OrderConfirmation{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Status:   string(resp.Status),
		AvgPrice: avgPrice,
	}, nil
}

// GetBalance возвращает доступный баланс в котируемой валюте
func (c *BinanceClient) GetBalance(ctx context.Context) (float64, error) {
	balances, err := c.futures.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	for _, b := range balances {
		if b.Asset != c.quoteAsset {
			continue
		}
		v, err := decimal.NewFromString(b.AvailableBalance)
		if err != nil {
			return 0, fmt.Errorf("ошибка парсинга баланса: %w", err)
		}
		f, _ := v.Float64()
		return f, nil
	}
	return 0, fmt.Errorf("баланс %s не найден", c.quoteAsset)
}
