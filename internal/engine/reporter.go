package engine

import (
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
)

// LogReporter пишет итоги цикла в лог. JSON ядро логгера делает из них
// машиночитаемое состояние цикла.
type LogReporter struct{}

func (LogReporter) Report(reports []models.CycleReport) {
	for _, r := range reports {
		fields := []zap.Field{
			zap.String("cycle", r.CycleID),
			zap.String("symbol", r.Symbol),
			zap.Float64("price", r.Price),
			zap.String("action", string(r.Decision.Action)),
			zap.Float64("confidence", r.Decision.Confidence),
			zap.Int("signals", len(r.Signals)),
			zap.Time("at", r.Timestamp),
		}
		if r.Trade != nil {
			fields = append(fields, zap.String("trade", r.Trade.ID), zap.String("mode", string(r.Trade.Mode)))
		}
		if r.Skip != "" {
			fields = append(fields, zap.String("skip", r.Skip))
		}
		if r.Error != "" {
			fields = append(fields, zap.String("error", r.Error))
		}
		logger.Info("Итог цикла", fields...)
	}
}

// MultiReporter раздает итоги нескольким получателям
type MultiReporter []Reporter

func (m MultiReporter) Report(reports []models.CycleReport) {
	for _, r := range m {
		r.Report(reports)
	}
}
