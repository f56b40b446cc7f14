package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skalibog/bfta/internal/analysis/aggregator"
	"github.com/skalibog/bfta/internal/analysis/registry"
	"github.com/skalibog/bfta/internal/analysis/scheduler"
	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/internal/engine"
	"github.com/skalibog/bfta/internal/exchange"
	"github.com/skalibog/bfta/internal/execution"
	"github.com/skalibog/bfta/internal/learner"
	"github.com/skalibog/bfta/internal/metrics"
	"github.com/skalibog/bfta/internal/oracle"
	"github.com/skalibog/bfta/internal/settlement"
	"github.com/skalibog/bfta/internal/storage"
	"github.com/skalibog/bfta/internal/storage/sqlstore"
	"github.com/skalibog/bfta/internal/ui"
	"github.com/skalibog/bfta/internal/weights"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	backtest := flag.Bool("backtest", false, "прогнать символы по истории и выйти")
	bars := flag.Int("bars", 1000, "число свечей истории для бэктеста")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}
	if *backtest {
		cfg.Trading.Mode = string(models.ModeBacktest)
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *bars); err != nil {
		logger.Error("Завершение с ошибкой", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, bars int) (err error) {
	mode := cfg.Mode()

	// InfluxDB необязателен
	var influx *storage.InfluxDBStorage
	if cfg.Storage.InfluxDB.URL != "" {
		influx, err = storage.NewInfluxDBStorage(ctx, cfg.Storage.InfluxDB)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, influx.Close()) }()
	}

	client := exchange.NewBinanceClient(cfg.Binance, cfg.Risk.QuantityPrecision)

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, reg); err != nil {
				logger.Error("Ошибка сервера метрик", zap.Error(err))
			}
		}()
	}

	agents, err := registry.Build(cfg.Agents, registry.Deps{
		Funding:      client,
		OrderBook:    client,
		OpenInterest: client,
	})
	if err != nil {
		return err
	}
	sched := scheduler.New(agents, cfg.Agents.Timeout, rec)

	var reasoner aggregator.Reasoner
	if len(cfg.Oracle.APIKeys) > 0 {
		reasoner = oracle.NewClient(cfg.Oracle)
	}
	strategy, err := aggregator.NewStrategy(cfg.Aggregator, reasoner)
	if err != nil {
		return err
	}

	logger.Info("BFTA запущен",
		zap.String("mode", string(mode)),
		zap.String("strategy", strategy.Name()),
		zap.Strings("agents", sched.Agents()))

	if mode == models.ModeBacktest {
		// Рабочая база не открывается: прогон живет на своем журнале
		wire := func(s engine.Session) engine.Deps {
			return engine.Deps{
				Scheduler:  sched,
				Aggregator: aggregator.NewAggregator(strategy, s.Weights, rec, s.Store),
				Executor:   execution.NewEngine(cfg.Risk, s.Store, s.Store, nil, rec),
				Balance:    s.Wallet,
				Settler:    settlement.NewSettler(s.Store, s.Wallet),
				Learner:    learner.NewJudge(cfg.Learner, s.Store, s.Weights, nil),
				Reporter:   engine.LogReporter{},
			}
		}
		return runBacktest(ctx, cfg, client, influx, bars, wire)
	}

	// Журнал сделок, сигналов и весов
	store, err := sqlstore.Open(cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	table := weights.NewStore()
	table.Load(ctx, store)
	rec.SetWeights(table.Snapshot())

	recorders := []aggregator.SnapshotRecorder{store}
	if influx != nil {
		recorders = append(recorders, influx)
	}

	wallet := execution.NewPaperWallet(cfg.Trading.PaperBalance)
	var balance execution.BalanceSource = wallet
	if mode == models.ModeLive {
		balance = execution.BalanceFunc(client.GetBalance)
	}

	reporters := engine.MultiReporter{engine.LogReporter{}}
	var dashboard *ui.TermUI
	if cfg.UI.Enabled {
		dashboard = ui.NewTermUI(cfg.UI, mode, table, cfg.Log.JSONFile)
		reporters = append(reporters, dashboard)
	}

	trader := engine.NewTrader(cfg.Trading, mode, engine.Deps{
		Market:     client,
		Scheduler:  sched,
		Aggregator: aggregator.NewAggregator(strategy, table, rec, recorders...),
		Executor:   execution.NewEngine(cfg.Risk, store, store, client, rec),
		Balance:    balance,
		Settler:    settlement.NewSettler(store, wallet),
		Learner:    learner.NewJudge(cfg.Learner, store, table, rec),
		Reporter:   reporters,
		Observer:   rec,
	})

	// Сборщик свечей пополняет историю для бэктестов
	if influx != nil {
		collector := exchange.NewCandleCollector(client, influx, cfg.Trading.Symbols, cfg.Trading.Interval,
			storage.IntervalDuration(cfg.Trading.Interval))
		go func() {
			if err := collector.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Сборщик свечей остановлен", zap.Error(err))
			}
		}()
	}

	interval := time.Duration(cfg.Trading.CycleSeconds) * time.Second
	if dashboard == nil {
		if err := trader.Run(ctx, interval); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	// UI блокирует основной поток, цикл работает в фоне
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = trader.Run(ctx, interval)
	}()
	return dashboard.Start(ctx)
}

func runBacktest(ctx context.Context, cfg *config.Config, client *exchange.BinanceClient, influx *storage.InfluxDBStorage, bars int, wire engine.SessionWiring) error {
	for _, symbol := range cfg.Trading.Symbols {
		var (
			candles []*models.Candle
			err     error
		)
		if influx != nil {
			candles, err = influx.GetCandles(ctx, symbol, cfg.Trading.Interval, bars)
		} else {
			candles, err = client.GetWindow(ctx, symbol, cfg.Trading.Interval, bars)
		}
		if err != nil {
			return fmt.Errorf("ошибка загрузки истории %s: %w", symbol, err)
		}

		res, err := engine.BacktestIsolated(ctx, cfg.Trading, symbol, candles, cfg.Trading.WindowLength, wire)
		if err != nil {
			return err
		}
		fmt.Printf("%s: сделок %d, прибыльных %d, убыточных %d, результат %.2f\n",
			symbol, len(res.Closed), res.Wins, res.Losses, res.PnL)
	}
	return nil
}
