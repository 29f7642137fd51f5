// Package observability exports quality gate telemetry: a Prometheus
// implementation of ports.MetricsCollector and OpenTelemetry span helpers
// for scenario runs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-qualitygate/infrastructure/llm"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// Namespace prefixes every exported metric.
const Namespace = "qualitygate"

// Metric names recorded by scenario execution.
const (
	MetricScenarioRuns     = "scenario_runs_total"
	MetricScenarioDuration = "scenario_duration_seconds"
	MetricEvaluationScore  = "evaluation_score"
	MetricFailedMetrics    = "failed_metrics_total"
)

const unknownLabel = "unknown"

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements ports.MetricsCollector with Prometheus
// vectors. Well-known metric names map onto dedicated vectors with fixed
// label sets; anything else lands in generic vectors keyed by name.
type PrometheusMetrics struct {
	chatLatency    *prometheus.HistogramVec
	chatRequests   *prometheus.CounterVec
	chatTokens     *prometheus.CounterVec
	scenarioRuns   *prometheus.CounterVec
	scenarioTime   *prometheus.HistogramVec
	scores         *prometheus.HistogramVec
	failedMetrics  *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	breakerEvents  *prometheus.CounterVec
	operationTime  *prometheus.HistogramVec
	operationCount *prometheus.CounterVec
	gauges         *prometheus.GaugeVec
	histograms     *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the collector's vectors with reg. A nil
// reg selects prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		chatLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      llm.MetricChatLatency,
			Help:      "Latency of chat completion requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider", "model", "status"}),
		chatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      llm.MetricChatRequests,
			Help:      "Chat completion requests by outcome.",
		}, []string{"provider", "model", "status"}),
		chatTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      llm.MetricChatTokens,
			Help:      "Tokens consumed by chat completion requests.",
		}, []string{"provider", "model", "token_type"}),
		scenarioRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricScenarioRuns,
			Help:      "Scenario runs by verdict.",
		}, []string{"status"}),
		scenarioTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      MetricScenarioDuration,
			Help:      "End-to-end scenario duration including chat and evaluation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		scores: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      MetricEvaluationScore,
			Help:      "Evaluator scores on the 1-5 scale.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"metric"}),
		failedMetrics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricFailedMetrics,
			Help:      "Metrics whose interpretation failed.",
		}, []string{"metric"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half open.",
		}, []string{"provider"}),
		breakerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "circuit_breaker_events_total",
			Help:      "Circuit breaker outcomes.",
		}, []string{"provider", "event"}),
		operationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of other operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operationCount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Counts of other operations.",
		}, []string{"metric"}),
		gauges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "state",
			Help:      "Current values of other gauges.",
		}, []string{"metric"}),
		histograms: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "observations",
			Help:      "Distributions of other values.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric"}),
	}
}

// RecordLatency observes duration in the vector for operation.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	switch operation {
	case llm.MetricChatLatency:
		pm.chatLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).
			Observe(duration.Seconds())
	case MetricScenarioDuration:
		pm.scenarioTime.WithLabelValues(label(labels, "status")).Observe(duration.Seconds())
	default:
		pm.operationTime.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordCounter adds value to the counter for metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case llm.MetricChatRequests:
		pm.chatRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).
			Add(value)
	case llm.MetricChatTokens:
		pm.chatTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "token_type")).
			Add(value)
	case MetricScenarioRuns:
		pm.scenarioRuns.WithLabelValues(label(labels, "status")).Add(value)
	case MetricFailedMetrics:
		pm.failedMetrics.WithLabelValues(label(labels, "metric")).Add(value)
	default:
		pm.operationCount.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge sets the gauge for metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.gauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram observes value in the histogram for metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == MetricEvaluationScore {
		pm.scores.WithLabelValues(label(labels, "metric")).Observe(value)
		return
	}
	pm.histograms.WithLabelValues(metric).Observe(value)
}

// CircuitBreaker returns an llm.CircuitBreakerMetrics that reports the
// breaker for provider through this collector.
func (pm *PrometheusMetrics) CircuitBreaker(provider string) llm.CircuitBreakerMetrics {
	return &breakerMetrics{pm: pm, provider: provider}
}

type breakerMetrics struct {
	pm       *PrometheusMetrics
	provider string
}

func (b *breakerMetrics) RecordState(state llm.CircuitBreakerState) {
	b.pm.breakerState.WithLabelValues(b.provider).Set(float64(state))
}

func (b *breakerMetrics) RecordTrip() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "rejected").Inc()
}

func (b *breakerMetrics) RecordSuccess() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "success").Inc()
}

func (b *breakerMetrics) RecordFailure() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "failure").Inc()
}

// Handler serves the metrics gathered by g in the Prometheus exposition
// format. A nil g selects prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}
