// Package metrics collects and exposes runtime observability data for the
// command dispatcher, event broker, and plugin host.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (per-kind counters + time series) for
//     a lightweight JSON endpoint (mounted at <metrics path>/json).
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems (Grafana, Alertmanager, etc.).
//
// Keeping both lets a bare deployment work without a Prometheus sidecar
// while still supporting enterprise monitoring stacks.
//
// # Concurrency on the hot path
//
// RecordCommand is called from the gateway on every /dsl request and must
// be as fast as possible. It uses atomic increments for
// global counters and dispatches a lightweight event onto a buffered
// channel (tsChan) for the time-series worker to process asynchronously.
// This avoids holding any lock on the hot path.
//
// # Invariants
//
//   - TotalCommands == SuccessCommands + FailedCommands (maintained by
//     RecordCommand).
//   - The time-series ring buffer holds at most timeSeriesBucketCount
//     buckets (24 * 60 = 1440 for the last 24 hours at 1-minute
//     granularity).
//   - tsChan capacity is 8192 events; events dropped when full are
//     counted in tsDroppedEvents for observability.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timeSeriesBucketDuration = time.Minute
	timeSeriesBucketCount    = 24 * 60
)

// TimeSeriesBucket stores metrics for a single time bucket.
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Commands     int64
	Errors       int64
	TotalLatency int64
	Count        int64 // for calculating avg
}

// Metrics collects and exposes runtime metrics.
type Metrics struct {
	// Command metrics
	TotalCommands   atomic.Int64
	SuccessCommands atomic.Int64
	FailedCommands  atomic.Int64
	ParseErrors     atomic.Int64

	// Latency metrics (in milliseconds)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	// Broker/plugin metrics
	EventsPublished          atomic.Int64
	BrokerPublishes          atomic.Int64
	BrokerDroppedSubscribers atomic.Int64
	PluginInvocations        atomic.Int64
	PluginErrors             atomic.Int64
	PluginVetoes             atomic.Int64
	ActiveSubscribers        atomic.Int64
	TimelineLength           atomic.Int64

	// Per-kind metrics
	kindMetrics sync.Map // CommandKind -> *KindMetrics

	// Time-series data (minute buckets for last 24 hours)
	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

// timeSeriesEvent is sent over a channel to avoid write-lock contention on
// the hot path.
type timeSeriesEvent struct {
	durationMs int64
	isError    bool
}

// KindMetrics tracks metrics for a single command kind label: the leading
// keyword of the command text as the gateway records it (DEFINE,
// SIMULATE, ORCHESTRATE, INVOKE, or whatever word an unparseable command
// starts with).
type KindMetrics struct {
	Commands  atomic.Int64
	Successes atomic.Int64
	Failures  atomic.Int64
	TotalMs   atomic.Int64
	MinMs     atomic.Int64
	MaxMs     atomic.Int64
}

// Global metrics instance.
var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1)) // max int64
	global.tsChan = make(chan timeSeriesEvent, 8192)
	global.initTimeSeries()
	go global.processTimeSeriesLoop()
}

// initTimeSeries initializes minute-level buckets for the last 24 hours.
func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
	for i := 0; i < timeSeriesBucketCount; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
		}
	}
}

// Global returns the global metrics instance.
func Global() *Metrics {
	return global
}

// StartTime returns the time when the metrics system was initialized.
func StartTime() time.Time {
	return global.startTime
}

// RecordCommand records one process_command invocation's outcome.
func (m *Metrics) RecordCommand(kind string, durationMs int64, success bool) {
	m.TotalCommands.Add(1)
	if success {
		m.SuccessCommands.Add(1)
	} else {
		m.FailedCommands.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	km := m.getKindMetrics(kind)
	km.Commands.Add(1)
	if success {
		km.Successes.Add(1)
	} else {
		km.Failures.Add(1)
	}
	km.TotalMs.Add(durationMs)
	updateMin(&km.MinMs, durationMs)
	updateMax(&km.MaxMs, durationMs)

	m.recordTimeSeries(durationMs, !success)

	RecordPrometheusCommand(kind, durationMs, success)
}

// RecordParseError counts a command rejected by the DSL parser.
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Add(1)
	RecordPrometheusParseError()
}

// RecordEventPublished records one timeline append / broker publish.
func (m *Metrics) RecordEventPublished(kind string) {
	m.EventsPublished.Add(1)
	RecordPrometheusEventPublished(kind)
}

// RecordBrokerPublish counts one broker fan-out, timeline-stamped or not.
func (m *Metrics) RecordBrokerPublish() {
	m.BrokerPublishes.Add(1)
	RecordPrometheusBrokerPublish()
}

// RecordBrokerDroppedSubscriber counts a subscriber disconnected by queue
// overflow.
func (m *Metrics) RecordBrokerDroppedSubscriber() {
	m.BrokerDroppedSubscribers.Add(1)
	RecordPrometheusBrokerDroppedSubscriber()
}

// SetTimelineLength updates the timeline-size gauge.
func (m *Metrics) SetTimelineLength(n int) {
	m.TimelineLength.Store(int64(n))
	SetPrometheusTimelineLength(n)
}

// RecordPluginInvocation records one plugin hook invocation.
func (m *Metrics) RecordPluginInvocation(pluginID, hook string, success bool) {
	m.PluginInvocations.Add(1)
	if !success {
		m.PluginErrors.Add(1)
	}
	RecordPrometheusPluginInvocation(pluginID, hook, success)
}

// RecordPluginVeto records a precommand hook vetoing a command.
func (m *Metrics) RecordPluginVeto() {
	m.PluginVetoes.Add(1)
	RecordPrometheusPluginVeto()
}

// SetActiveSubscribers updates the current SSE subscriber gauge.
func (m *Metrics) SetActiveSubscribers(n int) {
	m.ActiveSubscribers.Store(int64(n))
	SetPrometheusActiveSubscribers(n)
}

// recordTimeSeries enqueues a time-series event for async processing,
// avoiding a write-lock on the hot command-dispatch path.
func (m *Metrics) recordTimeSeries(durationMs int64, isError bool) {
	select {
	case m.tsChan <- timeSeriesEvent{durationMs: durationMs, isError: isError}:
	default:
		m.tsDroppedEvents.Add(1)
	}
}

// processTimeSeriesLoop drains tsChan and applies events under a write lock.
func (m *Metrics) processTimeSeriesLoop() {
	for evt := range m.tsChan {
		m.applyTimeSeriesEvent(evt.durationMs, evt.isError)
	}
}

// applyTimeSeriesEvent updates the time-series buckets (must be called
// from a single goroutine).
func (m *Metrics) applyTimeSeriesEvent(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)

	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		bucketsDiff := int(now.Sub(lastBucket.Timestamp) / timeSeriesBucketDuration)

		if bucketsDiff > 0 {
			if bucketsDiff >= timeSeriesBucketCount {
				m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
				for i := 0; i < timeSeriesBucketCount; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
					}
				}
			} else {
				m.timeSeries = m.timeSeries[bucketsDiff:]
				for i := 0; i < bucketsDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * timeSeriesBucketDuration),
					})
				}
			}
		}
	}

	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Commands++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

func (m *Metrics) getKindMetrics(kind string) *KindMetrics {
	if v, ok := m.kindMetrics.Load(kind); ok {
		return v.(*KindMetrics)
	}
	km := &KindMetrics{}
	km.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.kindMetrics.LoadOrStore(kind, km)
	return actual.(*KindMetrics)
}

// GetKindMetrics returns the metrics for a specific command kind (or nil
// if none recorded yet).
func (m *Metrics) GetKindMetrics(kind string) *KindMetrics {
	if v, ok := m.kindMetrics.Load(kind); ok {
		return v.(*KindMetrics)
	}
	return nil
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.TotalCommands.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"commands": map[string]interface{}{
			"total":        total,
			"success":      m.SuccessCommands.Load(),
			"failed":       m.FailedCommands.Load(),
			"parse_errors": m.ParseErrors.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"events": map[string]interface{}{
			"published":       m.EventsPublished.Load(),
			"timeline_length": m.TimelineLength.Load(),
		},
		"broker": map[string]interface{}{
			"publishes":           m.BrokerPublishes.Load(),
			"dropped_subscribers": m.BrokerDroppedSubscribers.Load(),
		},
		"plugins": map[string]interface{}{
			"invocations": m.PluginInvocations.Load(),
			"errors":      m.PluginErrors.Load(),
			"vetoes":      m.PluginVetoes.Load(),
		},
		"active_subscribers": m.ActiveSubscribers.Load(),
		"ts_dropped_events":  m.tsDroppedEvents.Load(),
	}
}

// KindStats returns per-command-kind metrics.
func (m *Metrics) KindStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.kindMetrics.Range(func(key, value interface{}) bool {
		kind := key.(string)
		km := value.(*KindMetrics)

		total := km.Commands.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(km.TotalMs.Load()) / float64(total)
		}

		minMs := km.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[kind] = map[string]interface{}{
			"commands":  total,
			"successes": km.Successes.Load(),
			"failures":  km.Failures.Load(),
			"avg_ms":    avgMs,
			"min_ms":    minMs,
			"max_ms":    km.MaxMs.Load(),
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["kinds"] = m.KindStats()
		json.NewEncoder(w).Encode(result)
	})
}

// TimeSeries returns minute-level time-series data for the last 24 hours.
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avgDuration := float64(0)
		if bucket.Count > 0 {
			avgDuration = float64(bucket.TotalLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":    bucket.Timestamp.Format(time.RFC3339),
			"commands":     bucket.Commands,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics.
func (m *Metrics) TimeSeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.TimeSeries())
	})
}

// Helper functions

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
