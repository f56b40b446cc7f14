package exchange

import (
	"context"
	"time"

	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
)

// CandleSource отдает окно свечей
type CandleSource interface {
	GetWindow(ctx context.Context, symbol, interval string, length int) (models.Window, error)
}

// CandleSink сохраняет свечи
type CandleSink interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
}

// CandleCollector периодически переносит свежие свечи с биржи в хранилище,
// чтобы бэктест мог воспроизвести историю
type CandleCollector struct {
	source   CandleSource
	sink     CandleSink
	symbols  []string
	interval string
	batch    int
	every    time.Duration
}

// NewCandleCollector создает сборщик свечей
func NewCandleCollector(source CandleSource, sink CandleSink, symbols []string, interval string, every time.Duration) *CandleCollector {
	return &CandleCollector{
		source:   source,
		sink:     sink,
		symbols:  symbols,
		interval: interval,
		batch:    500,
		every:    every,
	}
}

// Start запускает сбор и блокируется до отмены контекста
func (c *CandleCollector) Start(ctx context.Context) error {
	c.CollectOnce(ctx)

	ticker := time.NewTicker(c.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.CollectOnce(ctx)
		}
	}
}

// CollectOnce проходит по всем символам один раз. Ошибки по символу не прерывают остальные.
func (c *CandleCollector) CollectOnce(ctx context.Context) {
	for _, symbol := range c.symbols {
		window, err := c.source.GetWindow(ctx, symbol, c.interval, c.batch)
		if err != nil {
			logger.Warn("Сборщик: ошибка получения свечей", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if err := c.sink.SaveCandles(ctx, window); err != nil {
			logger.Warn("Сборщик: ошибка сохранения свечей", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		logger.Debug("Сборщик: свечи сохранены", zap.String("symbol", symbol), zap.Int("count", len(window)))
	}
}
