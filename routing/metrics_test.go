package routing

import (
	"testing"
	"time"
)

func TestMetricsSnapshotComputesLatencyMean(t *testing.T) {
	m := NewMetrics()
	m.ObserveLatency(10 * time.Millisecond)
	m.ObserveLatency(20 * time.Millisecond)
	m.IncRoute()
	m.IncRouteError()
	m.SetServiceCount(3)

	snap := m.Snapshot()
	if snap.RouteCount != 1 || snap.RouteErrorCount != 1 || snap.ServiceCount != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.MessageLatencyMeanMS != 15 {
		t.Fatalf("expected mean latency 15ms, got %v", snap.MessageLatencyMeanMS)
	}
}

func TestMetricsResetZeroesCounters(t *testing.T) {
	m := NewMetrics()
	m.IncMessage()
	m.IncRoute()
	m.ObserveLatency(5 * time.Millisecond)

	m.Reset()
	snap := m.Snapshot()
	if snap.MessageCount != 0 || snap.RouteCount != 0 || snap.MessageLatencyMeanMS != 0 {
		t.Fatalf("expected all counters zeroed after Reset, got %+v", snap)
	}
}
