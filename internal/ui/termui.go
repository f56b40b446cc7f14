package ui

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	mutedColor     = lipgloss.Color("#999999")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)
)

const maxLogs = 50

// WeightSource - текущая таблица весов агентов
type WeightSource interface {
	Snapshot() models.AgentWeights
}

// TermUI - терминальная панель только для чтения: решения по символам,
// веса агентов и хвост JSON лога
type TermUI struct {
	config  config.UIConfig
	mode    models.Mode
	weights WeightSource
	logFile string

	mu       sync.RWMutex
	reports  map[string]models.CycleReport
	logs     []string
	selected int

	program *tea.Program
}

// Сообщение для перерисовки
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает панель. logFile - JSON лог, который показывается внизу.
func NewTermUI(cfg config.UIConfig, mode models.Mode, weights WeightSource, logFile string) *TermUI {
	return &TermUI{
		config:  cfg,
		mode:    mode,
		weights: weights,
		logFile: logFile,
		reports: make(map[string]models.CycleReport),
		logs:    []string{"BFTA запущен. Ожидание данных..."},
	}
}

// Report принимает итоги цикла
func (ui *TermUI) Report(reports []models.CycleReport) {
	ui.mu.Lock()
	for _, r := range reports {
		ui.reports[r.Symbol] = r
	}
	ui.mu.Unlock()
	ui.refresh()
}

// Start блокирует до выхода пользователя или отмены контекста
func (ui *TermUI) Start(ctx context.Context) error {
	ui.program = tea.NewProgram(bubbleModel{ui: ui}, tea.WithAltScreen(), tea.WithContext(ctx))

	go ui.tailLogs(ctx)

	if _, err := ui.program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

func (ui *TermUI) refresh() {
	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

func (ui *TermUI) tailLogs(ctx context.Context) {
	interval := time.Duration(ui.config.RefreshRate) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ui.loadLogs(); err != nil {
				logger.Warn("Ошибка загрузки логов", zap.Error(err))
				continue
			}
			ui.refresh()
		}
	}
}

// loadLogs перечитывает JSON лог и оставляет последние maxLogs строк
func (ui *TermUI) loadLogs() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var logs []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		logs = append(logs, formatLogLine(scanner.Text()))
		if len(logs) > maxLogs {
			logs = logs[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(logs) > 0 {
		ui.mu.Lock()
		ui.logs = logs
		ui.mu.Unlock()
	}
	return nil
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// formatLogLine превращает строку zap JSON в "[15:04:05] [INFO] msg (k: v)"
func formatLogLine(line string) string {
	if !gjson.Valid(line) {
		return line
	}
	entry := gjson.Parse(line)
	level := ansiRegex.ReplaceAllString(entry.Get("level").String(), "")

	timestamp := ""
	if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", entry.Get("ts").String()); err == nil {
		timestamp = t.Format("15:04:05")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", timestamp, level, entry.Get("msg").String())
	entry.ForEach(func(k, v gjson.Result) bool {
		switch k.String() {
		case "level", "ts", "msg", "caller":
		default:
			fmt.Fprintf(&b, " (%s: %s)", k.String(), v.String())
		}
		return true
	})
	return b.String()
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			m.ui.mu.Lock()
			m.ui.selected = max(0, m.ui.selected-1)
			m.ui.mu.Unlock()
		case "down":
			m.ui.mu.Lock()
			m.ui.selected = max(0, min(len(m.ui.reports)-1, m.ui.selected+1))
			m.ui.mu.Unlock()
		case "r":
			_ = m.ui.loadLogs()
		}
	case refreshMsg:
	}
	return m, nil
}

func (m bubbleModel) View() string {
	ui := m.ui
	ui.mu.RLock()
	defer ui.mu.RUnlock()

	var w models.AgentWeights
	if ui.weights != nil {
		w = ui.weights.Snapshot()
	}

	title := titleStyle.Render(fmt.Sprintf("BFTA - Binance Futures Trading Agents [%s]", ui.mode))
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, R - перезагрузить логи, Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			renderDecisions(ui.reports, ui.selected),
			"\n",
			lipgloss.JoinHorizontal(lipgloss.Top,
				renderSignals(ui.reports, ui.selected),
				"  ",
				renderWeights(w),
			),
			"\n",
			renderLogs(ui.logs),
			"\n",
			footer,
		),
	)
}

func renderDecisions(reports map[string]models.CycleReport, selected int) string {
	var content strings.Builder

	symbols := sortedSymbols(reports)
	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	}
	for i, symbol := range symbols {
		r := reports[symbol]
		line := fmt.Sprintf("  %-10s %s (%.2f) Цена: %.4f  %s",
			symbol, formatAction(r.Decision.Action), r.Decision.Confidence, r.Price, outcome(r))
		if i == selected {
			line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render("> " + line[2:])
		}
		content.WriteString(line + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("РЕШЕНИЯ"), content.String()))
}

// renderSignals показывает сигналы агентов выбранного символа
func renderSignals(reports map[string]models.CycleReport, selected int) string {
	var content strings.Builder

	symbols := sortedSymbols(reports)
	if selected >= 0 && selected < len(symbols) {
		r := reports[symbols[selected]]
		for _, s := range r.Signals {
			line := fmt.Sprintf("  %-13s %s %.2f", s.AgentName, formatAction(s.Action), s.Confidence)
			if msg, ok := s.Metadata["error"]; ok {
				line += lipgloss.NewStyle().Foreground(errorColor).Render(fmt.Sprintf(" (%v)", msg))
			}
			content.WriteString(line + "\n")
		}
		if r.Decision.Reasoning != "" {
			content.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render("  "+r.Decision.Reasoning) + "\n")
		}
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("СИГНАЛЫ"), content.String()))
}

func renderWeights(w models.AgentWeights) string {
	var content strings.Builder

	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		content.WriteString("  все агенты 1.00\n")
	}
	for _, name := range names {
		fmt.Fprintf(&content, "  %-13s %.2f\n", name, w[name])
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("ВЕСА"), content.String()))
}

func renderLogs(logs []string) string {
	var content strings.Builder
	for _, line := range logs {
		switch {
		case strings.Contains(line, "[ERROR]"):
			line = lipgloss.NewStyle().Foreground(errorColor).Render(line)
		case strings.Contains(line, "[INFO]"):
			line = lipgloss.NewStyle().Foreground(successColor).Render(line)
		case strings.Contains(line, "[WARN]"):
			line = lipgloss.NewStyle().Foreground(warningColor).Render(line)
		case strings.Contains(line, "[DEBUG]"):
			line = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(line)
		}
		content.WriteString("  " + line + "\n")
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("ЛОГИ"), content.String()))
}

func formatAction(a models.Action) string {
	var style lipgloss.Style
	switch a {
	case models.ActionBuy:
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.ActionSell:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	case models.ActionAnalysis:
		style = lipgloss.NewStyle().Foreground(primaryColor)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}
	return style.Render(fmt.Sprintf("%-8s", a))
}

// outcome - короткое описание исхода цикла по символу
func outcome(r models.CycleReport) string {
	switch {
	case r.Trade != nil:
		return fmt.Sprintf("сделка %s %.6f @ %.4f SL %.4f TP %.4f",
			r.Trade.Mode, r.Trade.Quantity, r.Trade.EntryPrice, r.Trade.StopLoss, r.Trade.TakeProfit)
	case r.Error != "":
		return "ошибка: " + r.Error
	case r.Skip != "":
		return "пропуск: " + r.Skip
	default:
		return ""
	}
}

func sortedSymbols(reports map[string]models.CycleReport) []string {
	symbols := make([]string, 0, len(reports))
	for symbol := range reports {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
