// Package agent описывает контракт аналитического агента.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/skalibog/bfta/pkg/models"
)

// ErrInsufficientData - окно слишком короткое для расчета
var ErrInsufficientData = errors.New("недостаточно данных для анализа")

// Agent превращает окно свечей в один сигнал
type Agent interface {
	Name() string
	Analyze(ctx context.Context, symbol string, window models.Window) (models.Signal, error)
}

// RequireBars проверяет длину окна
func RequireBars(window models.Window, n int) error {
	if len(window) < n {
		return fmt.Errorf("%w: %d свечей (требуется %d)", ErrInsufficientData, len(window), n)
	}
	return nil
}

// Last возвращает последнее значение ряда
func Last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

// Finite сообщает, что все значения - конечные числа
func Finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
