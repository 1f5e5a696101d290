/*
Routing-service metrics. Named counters and named timers (running
total + sample count, for mean computation), exposable as a JSON
snapshot or through a Prometheus registry for text scraping.
*/
package routing

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks the routing service's named counters and timers.
type Metrics struct {
	mu sync.Mutex

	messageCount      int64
	messageErrorCount int64
	routeCount        int64
	routeErrorCount   int64
	serviceCount      int64

	messageLatencyTotal   time.Duration
	messageLatencySamples int64

	startedAt time.Time

	promMessageCount      prometheus.Counter
	promMessageErrorCount prometheus.Counter
	promRouteCount        prometheus.Counter
	promRouteErrorCount   prometheus.Counter
	promServiceCount      prometheus.Gauge
	promLatency           prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics constructs a Metrics instance with its own Prometheus
// registry, ready for promhttp.HandlerFor.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		startedAt: time.Now(),
		registry:  reg,
		promMessageCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routing_message_count_total",
			Help: "Total messages observed by the routing service.",
		}),
		promMessageErrorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routing_message_error_count_total",
			Help: "Total message processing errors.",
		}),
		promRouteCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routing_route_count_total",
			Help: "Total RouteMessage calls.",
		}),
		promRouteErrorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routing_route_error_count_total",
			Help: "Total RouteMessage calls that returned an error response.",
		}),
		promServiceCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "routing_service_instance_count",
			Help: "Currently registered service instances.",
		}),
		promLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "routing_message_latency_seconds",
			Help: "RouteMessage handling latency.",
		}),
	}
	reg.MustRegister(m.promMessageCount, m.promMessageErrorCount, m.promRouteCount, m.promRouteErrorCount, m.promServiceCount, m.promLatency)
	return m
}

// Registry returns the Prometheus registry for use with
// promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) IncMessage() {
	m.mu.Lock()
	m.messageCount++
	m.mu.Unlock()
	m.promMessageCount.Inc()
}

func (m *Metrics) IncMessageError() {
	m.mu.Lock()
	m.messageErrorCount++
	m.mu.Unlock()
	m.promMessageErrorCount.Inc()
}

func (m *Metrics) IncRoute() {
	m.mu.Lock()
	m.routeCount++
	m.mu.Unlock()
	m.promRouteCount.Inc()
}

func (m *Metrics) IncRouteError() {
	m.mu.Lock()
	m.routeErrorCount++
	m.mu.Unlock()
	m.promRouteErrorCount.Inc()
}

func (m *Metrics) SetServiceCount(n int) {
	m.mu.Lock()
	m.serviceCount = int64(n)
	m.mu.Unlock()
	m.promServiceCount.Set(float64(n))
}

func (m *Metrics) ObserveLatency(d time.Duration) {
	m.mu.Lock()
	m.messageLatencyTotal += d
	m.messageLatencySamples++
	m.mu.Unlock()
	m.promLatency.Observe(d.Seconds())
}

// Snapshot is the JSON-exportable view of every counter/timer.
type Snapshot struct {
	MessageCount         int64   `json:"message_count"`
	MessageErrorCount    int64   `json:"message_error_count"`
	RouteCount           int64   `json:"route_count"`
	RouteErrorCount      int64   `json:"route_error_count"`
	ServiceCount         int64   `json:"service_count"`
	MessageLatencyMeanMS float64 `json:"message_latency_mean_ms"`
	UptimeSeconds        float64 `json:"uptime_seconds"`
}

// Snapshot returns the current state of every counter and timer.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	mean := 0.0
	if m.messageLatencySamples > 0 {
		mean = float64(m.messageLatencyTotal.Milliseconds()) / float64(m.messageLatencySamples)
	}
	return Snapshot{
		MessageCount:         m.messageCount,
		MessageErrorCount:    m.messageErrorCount,
		RouteCount:           m.routeCount,
		RouteErrorCount:      m.routeErrorCount,
		ServiceCount:         m.serviceCount,
		MessageLatencyMeanMS: mean,
		UptimeSeconds:        time.Since(m.startedAt).Seconds(),
	}
}

// Reset zeroes the counters and timers that Snapshot reports and resets
// the start-time reference. The Prometheus collectors are not reset.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageCount = 0
	m.messageErrorCount = 0
	m.routeCount = 0
	m.routeErrorCount = 0
	m.serviceCount = 0
	m.messageLatencyTotal = 0
	m.messageLatencySamples = 0
	m.startedAt = time.Now()
}
