package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps the Prometheus collectors exposed by the
// gateway's /metrics endpoint: counters and histograms around commands,
// events, and plugin invocations.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	commandsTotal      *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	parseErrorsTotal   prometheus.Counter
	eventsTotal        *prometheus.CounterVec
	brokerPublishes    prometheus.Counter
	brokerDroppedSubs  prometheus.Counter
	pluginInvocTotal   *prometheus.CounterVec
	pluginVetoTotal    prometheus.Counter

	uptime            prometheus.GaugeFunc
	activeSubscribers prometheus.Gauge
	timelineLength    prometheus.Gauge
}

// defaultBuckets are the default histogram buckets for command duration
// (in milliseconds).
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total process_command invocations by kind and status",
			},
			[]string{"kind", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_ms",
				Help:      "process_command duration in milliseconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		parseErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_errors_total",
				Help:      "Total commands rejected by the DSL parser",
			},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total events published to the broker by kind",
			},
			[]string{"kind"},
		),
		brokerPublishes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broker_publishes_total",
				Help:      "Total broker fan-outs, including gateway-level notifications",
			},
		),
		brokerDroppedSubs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broker_dropped_subscribers_total",
				Help:      "Total subscribers disconnected by queue overflow",
			},
		),
		pluginInvocTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_invocations_total",
				Help:      "Total plugin hook invocations by plugin, hook, and status",
			},
			[]string{"plugin", "hook", "status"},
		),
		pluginVetoTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_vetoes_total",
				Help:      "Total commands vetoed by a precommand plugin hook",
			},
		),
		activeSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_subscribers",
				Help:      "Current number of connected SSE subscribers",
			},
		),
		timelineLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "timeline_length",
				Help:      "Current number of events on the timeline",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the metrics subsystem was initialized",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.commandsTotal,
		pm.commandDuration,
		pm.parseErrorsTotal,
		pm.eventsTotal,
		pm.brokerPublishes,
		pm.brokerDroppedSubs,
		pm.pluginInvocTotal,
		pm.pluginVetoTotal,
		pm.activeSubscribers,
		pm.timelineLength,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordPrometheusCommand records one process_command invocation.
func RecordPrometheusCommand(kind string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.commandsTotal.WithLabelValues(kind, status).Inc()
	promMetrics.commandDuration.WithLabelValues(kind).Observe(float64(durationMs))
}

// RecordPrometheusParseError records one parser rejection.
func RecordPrometheusParseError() {
	if promMetrics == nil {
		return
	}
	promMetrics.parseErrorsTotal.Inc()
}

// RecordPrometheusEventPublished records one broker publish.
func RecordPrometheusEventPublished(kind string) {
	if promMetrics == nil {
		return
	}
	promMetrics.eventsTotal.WithLabelValues(kind).Inc()
}

// RecordPrometheusBrokerPublish records one broker fan-out.
func RecordPrometheusBrokerPublish() {
	if promMetrics == nil {
		return
	}
	promMetrics.brokerPublishes.Inc()
}

// RecordPrometheusBrokerDroppedSubscriber records an overflow disconnect.
func RecordPrometheusBrokerDroppedSubscriber() {
	if promMetrics == nil {
		return
	}
	promMetrics.brokerDroppedSubs.Inc()
}

// SetPrometheusTimelineLength sets the timeline-size gauge.
func SetPrometheusTimelineLength(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.timelineLength.Set(float64(n))
}

// RecordPrometheusPluginInvocation records one plugin hook invocation.
func RecordPrometheusPluginInvocation(pluginID, hook string, success bool) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.pluginInvocTotal.WithLabelValues(pluginID, hook, status).Inc()
}

// RecordPrometheusPluginVeto records a precommand hook veto.
func RecordPrometheusPluginVeto() {
	if promMetrics == nil {
		return
	}
	promMetrics.pluginVetoTotal.Inc()
}

// SetPrometheusActiveSubscribers sets the active-subscriber gauge.
func SetPrometheusActiveSubscribers(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeSubscribers.Set(float64(n))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
// scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the Prometheus registry, for custom
// collectors.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
