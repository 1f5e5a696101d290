package routing

import (
	"testing"
	"time"
)

func TestRegisterUpdatesExistingByServiceID(t *testing.T) {
	r := NewInstanceRegistry()
	r.Register(&ServiceInstance{ServiceID: "i1", ServiceName: "chat", Host: "a", Port: 1})
	r.Register(&ServiceInstance{ServiceID: "i1", ServiceName: "chat", Host: "b", Port: 2})

	healthy := r.Healthy("chat")
	if len(healthy) != 1 {
		t.Fatalf("expected re-registration to update in place, got %d instances", len(healthy))
	}
	if healthy[0].Host != "b" || healthy[0].Port != 2 {
		t.Fatalf("expected endpoint refreshed, got %+v", healthy[0])
	}
}

func TestUnregisterErasesEmptyServiceName(t *testing.T) {
	r := NewInstanceRegistry()
	r.Register(&ServiceInstance{ServiceID: "i1", ServiceName: "chat"})
	r.Unregister("i1")

	if len(r.Healthy("chat")) != 0 {
		t.Fatalf("expected no instances after unregister")
	}
	if r.Count() != 0 {
		t.Fatalf("expected service name entry erased, count=%d", r.Count())
	}
}

func TestHealthyExcludesUnhealthyInstances(t *testing.T) {
	r := NewInstanceRegistry()
	r.Register(&ServiceInstance{ServiceID: "i1", ServiceName: "chat"})
	r.Register(&ServiceInstance{ServiceID: "i2", ServiceName: "chat"})
	r.MarkHeartbeat("i2", false)

	healthy := r.Healthy("chat")
	if len(healthy) != 1 || healthy[0].ServiceID != "i1" {
		t.Fatalf("expected only i1 healthy, got %+v", healthy)
	}
}

func TestSweepDropsStaleInstances(t *testing.T) {
	r := NewInstanceRegistry()
	r.Register(&ServiceInstance{ServiceID: "i1", ServiceName: "chat"})
	time.Sleep(5 * time.Millisecond)
	r.Sweep(time.Millisecond)

	if r.Count() != 0 {
		t.Fatalf("expected stale instance swept, count=%d", r.Count())
	}
}
