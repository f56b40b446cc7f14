package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance    BinanceConfig    `yaml:"binance"`
	Trading    TradingConfig    `yaml:"trading"`
	Agents     AgentsConfig     `yaml:"agents"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Risk       RiskConfig       `yaml:"risk"`
	Learner    LearnerConfig    `yaml:"learner"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	UI         UIConfig         `yaml:"ui"`
	Log        logger.Config    `yaml:"log"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торгового цикла
type TradingConfig struct {
	Symbols      []string      `yaml:"symbols"`
	Interval     string        `yaml:"interval"`
	WindowLength int           `yaml:"window_length"`
	Mode         string        `yaml:"mode"`
	CycleSeconds int           `yaml:"cycle_seconds"`
	BatchSize    int           `yaml:"batch_size"`
	BatchPause   time.Duration `yaml:"batch_pause"`
	PaperBalance float64       `yaml:"paper_balance"`
	DataTimeout  time.Duration `yaml:"data_timeout"`
}

// AgentsConfig содержит список агентов и их параметры
type AgentsConfig struct {
	Enabled      []string           `yaml:"enabled"`
	Timeout      time.Duration      `yaml:"timeout"`
	Technical    TechnicalConfig    `yaml:"technical"`
	OrderBook    OrderBookConfig    `yaml:"orderbook"`
	Funding      FundingConfig      `yaml:"funding"`
	OpenInterest OpenInterestConfig `yaml:"open_interest"`
}

// TechnicalConfig настройки технического анализа
type TechnicalConfig struct {
	RSIPeriod  int `yaml:"rsi_period"`
	BBPeriod   int `yaml:"bb_period"`
	ATRPeriod  int `yaml:"atr_period"`
	MACDFast   int `yaml:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow"`
	MACDSignal int `yaml:"macd_signal"`
}

// OrderBookConfig настройки анализа стакана
type OrderBookConfig struct {
	Depth              int     `yaml:"depth"`
	ImbalanceThreshold float64 `yaml:"imbalance_threshold"`
}

// FundingConfig настройки анализа ставок финансирования
type FundingConfig struct {
	Periods          int     `yaml:"periods"`
	ExtremeThreshold float64 `yaml:"extreme_threshold"`
}

// OpenInterestConfig настройки анализа открытого интереса
type OpenInterestConfig struct {
	Period          string  `yaml:"period"`
	Lookback        int     `yaml:"lookback"`
	ChangeThreshold float64 `yaml:"change_threshold"`
}

// AggregatorConfig настройки сведения сигналов
type AggregatorConfig struct {
	Strategy        string  `yaml:"strategy"`
	BuyThreshold    float64 `yaml:"threshold_buy"`
	SellThreshold   float64 `yaml:"threshold_sell"`
	RSIBias         float64 `yaml:"rsi_bias"`
	MACDBias        float64 `yaml:"macd_bias"`
	BaseConfidence  float64 `yaml:"base_confidence"`
	ConfidenceScale float64 `yaml:"confidence_scale"`
}

// RiskConfig настройки риск-менеджмента
type RiskConfig struct {
	RiskPerTrade        float64 `yaml:"risk_per_trade"`
	MaxLeverage         float64 `yaml:"max_leverage"`
	DailyLossLimit      float64 `yaml:"daily_loss_limit"`
	ATRMultiplier       float64 `yaml:"atr_multiplier"`
	RewardRatio         float64 `yaml:"reward_ratio"`
	QuantityPrecision   int32   `yaml:"quantity_precision"`
	LiveConfidenceFloor float64 `yaml:"live_confidence_floor"`
}

// LearnerConfig настройки обучения весов
type LearnerConfig struct {
	LearningRate    float64       `yaml:"learning_rate"`
	BatchSize       int           `yaml:"batch_size"`
	SignalTolerance time.Duration `yaml:"signal_tolerance"`
}

// OracleConfig настройки внешней модели рассуждений
type OracleConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKeys     []string      `yaml:"api_keys"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// InfluxDBConfig настройки временных рядов. Пустой URL отключает InfluxDB.
type InfluxDBConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// SQLiteConfig настройки журнала сделок, снимков сигналов и весов
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig настройки prometheus
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Enabled     bool `yaml:"enabled"`
	RefreshRate int  `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла, применяет значения по умолчанию,
// переменные окружения и проверяет результат
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Strings("symbols", cfg.Trading.Symbols))
	return cfg, nil
}

// Parse разбирает yaml конфигурации
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Binance.APISecret = v
	}
	if v := os.Getenv("ORACLE_API_KEYS"); v != "" {
		c.Oracle.APIKeys = splitList(v)
	}
	if v := os.Getenv("INFLUX_TOKEN"); v != "" {
		c.Storage.InfluxDB.Token = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		c.Trading.Mode = v
	}
}

func (c *Config) applyDefaults() {
	t := &c.Trading
	setString(&t.Interval, "1h")
	setInt(&t.WindowLength, 100)
	setString(&t.Mode, string(models.ModePaper))
	setInt(&t.CycleSeconds, 3600)
	setInt(&t.BatchSize, 5)
	setDuration(&t.BatchPause, 2*time.Second)
	setFloat(&t.PaperBalance, 10000)
	setDuration(&t.DataTimeout, 15*time.Second)

	a := &c.Agents
	if len(a.Enabled) == 0 {
		a.Enabled = []string{"technical", "trend", "volatility", "volume", "momentum", "pattern", "whale"}
	}
	setDuration(&a.Timeout, 10*time.Second)
	setInt(&a.Technical.RSIPeriod, 14)
	setInt(&a.Technical.BBPeriod, 20)
	setInt(&a.Technical.ATRPeriod, 14)
	setInt(&a.Technical.MACDFast, 12)
	setInt(&a.Technical.MACDSlow, 26)
	setInt(&a.Technical.MACDSignal, 9)
	setInt(&a.OrderBook.Depth, 50)
	setFloat(&a.OrderBook.ImbalanceThreshold, 0.2)
	setInt(&a.Funding.Periods, 8)
	setFloat(&a.Funding.ExtremeThreshold, 0.0005)
	setString(&a.OpenInterest.Period, "1h")
	setInt(&a.OpenInterest.Lookback, 24)
	setFloat(&a.OpenInterest.ChangeThreshold, 0.02)

	g := &c.Aggregator
	setString(&g.Strategy, "heuristic")
	setFloat(&g.BuyThreshold, 1.0)
	setFloat(&g.SellThreshold, -1.0)
	setFloat(&g.RSIBias, 0.5)
	setFloat(&g.MACDBias, 0.3)
	setFloat(&g.BaseConfidence, 0.5)
	setFloat(&g.ConfidenceScale, 0.5)

	r := &c.Risk
	setFloat(&r.RiskPerTrade, 0.01)
	setFloat(&r.MaxLeverage, 1)
	setFloat(&r.DailyLossLimit, 0.05)
	setFloat(&r.ATRMultiplier, 2)
	setFloat(&r.RewardRatio, 2)
	if r.QuantityPrecision == 0 {
		r.QuantityPrecision = 6
	}
	setFloat(&r.LiveConfidenceFloor, 0.7)

	l := &c.Learner
	setFloat(&l.LearningRate, 0.1)
	setInt(&l.BatchSize, 50)
	setDuration(&l.SignalTolerance, 2*time.Minute)

	o := &c.Oracle
	setString(&o.BaseURL, "https://api.groq.com/openai/v1")
	setString(&o.Model, "llama3-70b-8192")
	setFloat(&o.Temperature, 0.1)
	setDuration(&o.Timeout, 30*time.Second)
	setInt(&o.MaxRetries, 3)

	setString(&c.Storage.SQLite.Path, "data/bfta.db")
	setString(&c.Metrics.Addr, ":9108")
	setString(&c.Metrics.Path, "/metrics")
	setInt(&c.UI.RefreshRate, 1000)

	if c.Log == (logger.Config{}) {
		c.Log = logger.DefaultConfig()
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols не может быть пустым")
	}
	if _, err := models.ParseMode(c.Trading.Mode); err != nil {
		return fmt.Errorf("trading.mode: %w", err)
	}
	if c.Trading.BatchSize < 1 {
		return fmt.Errorf("trading.batch_size должен быть положительным")
	}
	switch c.Aggregator.Strategy {
	case "heuristic", "oracle", "hybrid":
	default:
		return fmt.Errorf("aggregator.strategy должен быть heuristic, oracle или hybrid, получено %q", c.Aggregator.Strategy)
	}
	if c.Aggregator.BuyThreshold <= 0 || c.Aggregator.SellThreshold >= 0 {
		return fmt.Errorf("aggregator: порог покупки должен быть > 0, порог продажи < 0")
	}
	if c.Aggregator.Strategy != "heuristic" && len(c.Oracle.APIKeys) == 0 {
		return fmt.Errorf("oracle.api_keys обязателен для стратегии %s", c.Aggregator.Strategy)
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade >= 1 {
		return fmt.Errorf("risk.risk_per_trade должен быть в (0, 1)")
	}
	if c.Risk.MaxLeverage <= 0 {
		return fmt.Errorf("risk.max_leverage должен быть положительным")
	}
	if c.Risk.DailyLossLimit <= 0 || c.Risk.DailyLossLimit > 1 {
		return fmt.Errorf("risk.daily_loss_limit должен быть в (0, 1]")
	}
	if c.Learner.LearningRate <= 0 {
		return fmt.Errorf("learner.learning_rate должен быть положительным")
	}
	if c.Mode() == models.ModeLive && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		return fmt.Errorf("для режима LIVE нужны binance.api_key и binance.api_secret")
	}
	return nil
}

// Mode возвращает разобранный режим торговли
func (c *Config) Mode() models.Mode {
	m, _ := models.ParseMode(c.Trading.Mode)
	return m
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
