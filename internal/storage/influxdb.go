// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/models"
)

// InfluxDBStorage хранит историю свечей и временные ряды сигналов и решений
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPIBlocking
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(ctx context.Context, cfg config.InfluxDBConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() error {
	s.client.Close()
	return nil
}

// SaveCandles сохраняет множество свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	points := make([]*write.Point, 0, len(candles))
	for _, c := range candles {
		points = append(points, candlePoint(c))
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("ошибка записи свечей: %w", err)
	}
	return nil
}

// GetCandles получает последние limit свечей в хронологическом порядке
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -90d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, interval, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	var candles []*models.Candle
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		closePrice, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: timestamp.Add(IntervalDuration(interval) - time.Millisecond),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	// Flux отдает новые первыми, окно агентам нужно в хронологическом порядке
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

// GetWindow возвращает окно истории для бэктеста
func (s *InfluxDBStorage) GetWindow(ctx context.Context, symbol, interval string, length int) (models.Window, error) {
	candles, err := s.GetCandles(ctx, symbol, interval, length)
	if err != nil {
		return nil, err
	}
	return models.Window(candles), nil
}

// RecordSnapshot пишет сигналы агентов и решение как точки временного ряда
func (s *InfluxDBStorage) RecordSnapshot(ctx context.Context, snap models.Snapshot) error {
	d := snap.Decision
	points := make([]*write.Point, 0, len(snap.Signals)+1)
	for _, sig := range snap.Signals {
		points = append(points, influxdb2.NewPoint(
			"signals",
			map[string]string{
				"symbol": sig.Symbol,
				"agent":  sig.AgentName,
			},
			map[string]interface{}{
				"action":     string(sig.Action),
				"direction":  sig.Action.Sign(),
				"confidence": sig.Confidence,
				"cycle":      snap.CycleID,
			},
			d.Timestamp,
		))
	}
	points = append(points, influxdb2.NewPoint(
		"decisions",
		map[string]string{
			"symbol":   d.Symbol,
			"strategy": d.Strategy,
		},
		map[string]interface{}{
			"action":     string(d.Action),
			"direction":  d.Action.Sign(),
			"confidence": d.Confidence,
			"reasoning":  d.Reasoning,
			"cycle":      snap.CycleID,
		},
		d.Timestamp,
	))

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("ошибка записи снимка сигналов: %w", err)
	}
	return nil
}

func candlePoint(c *models.Candle) *write.Point {
	return influxdb2.NewPoint(
		"candles",
		map[string]string{
			"symbol":   c.Symbol,
			"interval": c.Interval,
		},
		map[string]interface{}{
			"open":   c.Open,
			"high":   c.High,
			"low":    c.Low,
			"close":  c.Close,
			"volume": c.Volume,
		},
		c.OpenTime,
	)
}

// IntervalDuration конвертирует строковый интервал в duration
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "3d":
		return 72 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
