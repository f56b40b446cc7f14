package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/internal/weights"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLogLine(t *testing.T) {
	line := `{"level":"INFO","ts":"02.01.2024 - 15:04:05.000000000Z","caller":"engine/trader.go:10","msg":"Цикл завершен","symbols":2}`
	assert.Equal(t, "[15:04:05] [INFO] Цикл завершен (symbols: 2)", formatLogLine(line))
	assert.Equal(t, "plain text", formatLogLine("plain text"))
}

func TestLoadLogs_KeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json.log")
	var b strings.Builder
	for i := 0; i < maxLogs+10; i++ {
		b.WriteString(`{"level":"DEBUG","msg":"tick"}` + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	ui := NewTermUI(config.UIConfig{}, models.ModePaper, nil, path)
	require.NoError(t, ui.loadLogs())
	assert.Len(t, ui.logs, maxLogs)
}

func TestView_ShowsReportsAndWeights(t *testing.T) {
	table := weights.NewStore()
	table.Replace(models.AgentWeights{"trend": 1.4})

	ui := NewTermUI(config.UIConfig{}, models.ModePaper, table, filepath.Join(t.TempDir(), "absent.log"))
	ui.Report([]models.CycleReport{{
		Symbol:   "BTCUSDT",
		Price:    50000,
		Decision: models.Decision{Action: models.ActionBuy, Confidence: 0.8, Reasoning: "score=1.200"},
		Signals:  []models.Signal{models.NewSignal("trend", "BTCUSDT", models.ActionBuy, 0.9, nil)},
		Skip:     "position_open",
	}})

	view := bubbleModel{ui: ui}.View()
	assert.Contains(t, view, "BTCUSDT")
	assert.Contains(t, view, "пропуск: position_open")
	assert.Contains(t, view, "1.40")
	assert.Contains(t, view, "score=1.200")
}
