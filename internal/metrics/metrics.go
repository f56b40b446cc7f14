// Package metrics публикует показатели торгового цикла в prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/skalibog/bfta/pkg/models"
	"go.uber.org/zap"
)

const namespace = "bfta"

// Recorder собирает метрики агентов, решений, сделок и весов
type Recorder struct {
	agentLatency *prometheus.HistogramVec
	agentErrors  *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	recordErrors prometheus.Counter
	trades       *prometheus.CounterVec
	skips        *prometheus.CounterVec
	cycle        prometheus.Histogram
	weights      *prometheus.GaugeVec
}

// New создает и регистрирует метрики в reg
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		agentLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "latency_seconds",
				Help:      "Agent analysis latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		agentErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "failures_total",
				Help:      "Agent calls replaced by a neutral signal",
			},
			[]string{"agent"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "decisions_total",
				Help:      "Decisions by action and strategy",
			},
			[]string{"action", "strategy"},
		),
		recordErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "snapshot_errors_total",
				Help:      "Failed signal snapshot writes",
			},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "execution",
				Name:      "trades_total",
				Help:      "Trades by mode and direction",
			},
			[]string{"mode", "direction"},
		),
		skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "execution",
				Name:      "skips_total",
				Help:      "Skipped executions by reason",
			},
			[]string{"reason"},
		),
		cycle: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "cycle_seconds",
				Help:      "Duration of a full scan over all symbols",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		weights: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "learner",
				Name:      "agent_weight",
				Help:      "Current trust weight per agent",
			},
			[]string{"agent"},
		),
	}

	reg.MustRegister(r.agentLatency, r.agentErrors, r.decisions, r.recordErrors, r.trades, r.skips, r.cycle, r.weights)
	return r
}

func (r *Recorder) ObserveAgent(agent string, elapsed time.Duration, failed bool) {
	r.agentLatency.WithLabelValues(agent).Observe(elapsed.Seconds())
	if failed {
		r.agentErrors.WithLabelValues(agent).Inc()
	}
}

func (r *Recorder) ObserveDecision(d models.Decision) {
	r.decisions.WithLabelValues(string(d.Action), d.Strategy).Inc()
}

func (r *Recorder) ObserveRecordError() {
	r.recordErrors.Inc()
}

func (r *Recorder) ObserveTrade(t *models.Trade) {
	r.trades.WithLabelValues(string(t.Mode), string(t.Direction)).Inc()
}

func (r *Recorder) ObserveSkip(reason string) {
	r.skips.WithLabelValues(reason).Inc()
}

func (r *Recorder) ObserveCycle(elapsed time.Duration) {
	r.cycle.Observe(elapsed.Seconds())
}

func (r *Recorder) SetWeights(w models.AgentWeights) {
	for agent, v := range w {
		r.weights.WithLabelValues(agent).Set(v)
	}
}

// Serve отдает метрики по HTTP до отмены ctx
func Serve(ctx context.Context, addr, path string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Метрики доступны", zap.String("addr", addr), zap.String("path", path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
