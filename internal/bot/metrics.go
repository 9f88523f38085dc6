package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hedgebot/internal/models"
)

// metrics.go - Prometheus метрики торгового ядра

// Metrics агрегирует метрики исполнения и риска
type Metrics struct {
	executionsTotal   *prometheus.CounterVec
	partialFillsTotal *prometheus.CounterVec

	driftBps    prometheus.Histogram
	slippageBps prometheus.Histogram

	breakerState prometheus.Gauge
	riskLevel    prometheus.Gauge
	equityQuote  prometheus.Gauge
}

// NewMetrics регистрирует метрики в дефолтном Prometheus registry.
// Вызывается один раз при старте процесса.
func NewMetrics() *Metrics {
	return &Metrics{
		executionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hedgebot_executions_total",
			Help: "Hedge executions by operation and outcome",
		}, []string{"operation", "outcome"}),
		partialFillsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hedgebot_partial_fills_total",
			Help: "Orders that required partial-fill top-up, by market",
		}, []string{"market"}),
		driftBps: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hedgebot_drift_bps",
			Help:    "Hedge leg notional drift after fills, bps",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		slippageBps: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hedgebot_slippage_bps",
			Help:    "Estimated slippage at validation time, bps",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 50, 100},
		}),
		breakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hedgebot_execution_breaker_state",
			Help: "Execution circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		riskLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hedgebot_risk_level",
			Help: "Latest risk level (0=safe .. 4=blocked)",
		}),
		equityQuote: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hedgebot_equity_quote",
			Help: "Account equity, quote units",
		}),
	}
}

// IncExecution учитывает итог одной оркестрации
func (m *Metrics) IncExecution(operation, outcome string) {
	m.executionsTotal.WithLabelValues(operation, outcome).Inc()
}

// IncPartialFills учитывает ордер, потребовавший доливки
func (m *Metrics) IncPartialFills(market string) {
	m.partialFillsTotal.WithLabelValues(market).Inc()
}

// ObserveDrift фиксирует расхождение ног после исполнения
func (m *Metrics) ObserveDrift(bps int64) {
	m.driftBps.Observe(float64(bps))
}

// ObserveSlippage фиксирует оценку проскальзывания
func (m *Metrics) ObserveSlippage(bps int64) {
	m.slippageBps.Observe(float64(bps))
}

// SetBreakerState публикует состояние breaker'а
func (m *Metrics) SetBreakerState(state BreakerState) {
	m.breakerState.Set(float64(state))
}

// SetRiskLevel публикует последний уровень риска
func (m *Metrics) SetRiskLevel(level models.RiskLevel) {
	m.riskLevel.Set(float64(level))
}

// SetEquity публикует капитал счёта
func (m *Metrics) SetEquity(equityQuote int64) {
	m.equityQuote.Set(float64(equityQuote))
}
