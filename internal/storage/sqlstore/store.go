// Package sqlstore хранит сделки, снимки сигналов и веса агентов в SQLite через gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skalibog/bfta/pkg/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound возвращается, когда запись отсутствует
var ErrNotFound = errors.New("запись не найдена")

// Store - журнал сделок, сигналов и весов
type Store struct {
	db *gorm.DB
}

// Open открывает (или создает) базу по пути. ":memory:" - база в памяти.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlstore: путь к базе не задан")
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlstore: ошибка создания каталога: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: ошибка открытия базы: %w", err)
	}
	if err := db.AutoMigrate(&tradeModel{}, &signalModel{}, &decisionModel{}, &weightModel{}); err != nil {
		return nil, fmt.Errorf("sqlstore: ошибка миграции: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Один писатель на SQLite, конкурентные записи встают в очередь пула
	sqlDB.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// Close закрывает соединение
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StoreTrade сохраняет новую сделку
func (s *Store) StoreTrade(ctx context.Context, t *models.Trade) error {
	if t.Quantity <= 0 {
		return fmt.Errorf("sqlstore: сделка %s с нулевым количеством", t.ID)
	}
	m := toTradeModel(t)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("sqlstore: ошибка сохранения сделки: %w", err)
	}
	return nil
}

// UpdateTrade перезаписывает поля выхода сделки
func (s *Store) UpdateTrade(ctx context.Context, t *models.Trade) error {
	m := toTradeModel(t)
	res := s.db.WithContext(ctx).Model(&tradeModel{}).Where("id = ?", t.ID).Updates(map[string]any{
		"exit_price":  m.ExitPrice,
		"exit_time":   m.ExitTime,
		"profit_loss": m.ProfitLoss,
		"status":      m.Status,
	})
	if res.Error != nil {
		return fmt.Errorf("sqlstore: ошибка обновления сделки: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sqlstore: сделка %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// OpenTrades возвращает открытые сделки. Пустой symbol - по всем символам.
func (s *Store) OpenTrades(ctx context.Context, symbol string) ([]*models.Trade, error) {
	q := s.db.WithContext(ctx).Where("status = ?", string(models.TradeOpen))
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []tradeModel
	if err := q.Order("entry_time ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: ошибка чтения открытых сделок: %w", err)
	}
	return toTrades(rows), nil
}

// HasOpenTrade сообщает, есть ли по символу открытая сделка в режиме mode.
// Бумажная позиция не блокирует реальную и наоборот.
func (s *Store) HasOpenTrade(ctx context.Context, symbol string, mode models.Mode) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&tradeModel{}).
		Where("symbol = ? AND mode = ? AND status = ?", symbol, string(mode), string(models.TradeOpen)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("sqlstore: ошибка проверки открытых сделок: %w", err)
	}
	return n > 0, nil
}

// ClosedTrades возвращает последние закрытые сделки, новые первыми
func (s *Store) ClosedTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	var rows []tradeModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(models.TradeClosed)).
		Order("exit_time DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: ошибка чтения закрытых сделок: %w", err)
	}
	return toTrades(rows), nil
}

// RealizedPnL суммирует результат сделок, закрытых начиная с since
func (s *Store) RealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	row := s.db.WithContext(ctx).Model(&tradeModel{}).
		Select("COALESCE(SUM(profit_loss), 0)").
		Where("status = ? AND exit_time >= ?", string(models.TradeClosed), since.UTC()).
		Row()
	if err := row.Scan(&sum); err != nil {
		return 0, fmt.Errorf("sqlstore: ошибка расчета результата: %w", err)
	}
	return sum, nil
}

// RecordSnapshot сохраняет сигналы цикла и решение одной транзакцией.
// Все сигналы помечаются временем решения.
func (s *Store) RecordSnapshot(ctx context.Context, snap models.Snapshot) error {
	at := snap.Decision.Timestamp
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(snap.Signals) > 0 {
			rows := make([]signalModel, 0, len(snap.Signals))
			for _, sig := range snap.Signals {
				rows = append(rows, toSignalModel(snap.CycleID, sig, at))
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("sqlstore: ошибка сохранения сигналов: %w", err)
			}
		}
		d := decisionModel{
			CycleID:    snap.CycleID,
			Symbol:     snap.Decision.Symbol,
			Action:     string(snap.Decision.Action),
			Confidence: snap.Decision.Confidence,
			Strategy:   snap.Decision.Strategy,
			Reasoning:  snap.Decision.Reasoning,
			Timestamp:  at.UTC(),
		}
		if err := tx.Create(&d).Error; err != nil {
			return fmt.Errorf("sqlstore: ошибка сохранения решения: %w", err)
		}
		return nil
	})
}

// SignalsNear возвращает действие каждого агента из снимка, ближайшего к ts
// в пределах tolerance
func (s *Store) SignalsNear(ctx context.Context, symbol string, ts time.Time, tolerance time.Duration) (map[string]models.Action, error) {
	var rows []signalModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timestamp BETWEEN ? AND ?", symbol, ts.Add(-tolerance).UTC(), ts.Add(tolerance).UTC()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: ошибка чтения сигналов: %w", err)
	}

	out := make(map[string]models.Action, len(rows))
	best := make(map[string]time.Duration, len(rows))
	for _, r := range rows {
		d := time.Duration(math.Abs(float64(r.Timestamp.Sub(ts))))
		if prev, ok := best[r.AgentName]; ok && prev <= d {
			continue
		}
		best[r.AgentName] = d
		out[r.AgentName] = models.Action(r.Action)
	}
	return out, nil
}

// LoadWeights читает таблицу весов
func (s *Store) LoadWeights(ctx context.Context) (models.AgentWeights, error) {
	var rows []weightModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: ошибка чтения весов: %w", err)
	}
	out := make(models.AgentWeights, len(rows))
	for _, r := range rows {
		out[r.AgentName] = r.Weight
	}
	return out, nil
}

// SaveWeights переписывает таблицу весов целиком в одной транзакции
func (s *Store) SaveWeights(ctx context.Context, w models.AgentWeights) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&weightModel{}).Error; err != nil {
			return fmt.Errorf("sqlstore: ошибка очистки весов: %w", err)
		}
		if len(w) == 0 {
			return nil
		}
		rows := make([]weightModel, 0, len(w))
		for name, v := range w {
			rows = append(rows, weightModel{AgentName: name, Weight: v, UpdatedAt: now})
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"weight", "updated_at"}),
		}).Create(&rows).Error
		if err != nil {
			return fmt.Errorf("sqlstore: ошибка записи весов: %w", err)
		}
		return nil
	})
}

func toTrades(rows []tradeModel) []*models.Trade {
	out := make([]*models.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTrade())
	}
	return out
}
