package routing

import "testing"

func makeInstances(n int) []*ServiceInstance {
	out := make([]*ServiceInstance, n)
	for i := 0; i < n; i++ {
		out[i] = &ServiceInstance{
			ServiceID:   string(rune('a' + i)),
			ServiceName: "chat",
			Healthy:     true,
		}
	}
	return out
}

// TestRoundRobinVisitsEachInstanceOnce checks that with a stable list
// of N healthy instances, any window of N consecutive selections
// visits each instance exactly once.
func TestRoundRobinVisitsEachInstanceOnce(t *testing.T) {
	lb := NewLoadBalancer(RoundRobin)
	instances := makeInstances(3)

	seen := make(map[string]int)
	var picks []string
	for i := 0; i < 6; i++ {
		inst, err := lb.Select("chat", "", instances)
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		seen[inst.ServiceID]++
		picks = append(picks, inst.ServiceID)
	}
	for start := 0; start+len(instances) <= len(picks); start++ {
		window := make(map[string]bool)
		for _, id := range picks[start : start+len(instances)] {
			window[id] = true
		}
		if len(window) != len(instances) {
			t.Fatalf("expected window %v to visit each instance once", picks[start:start+len(instances)])
		}
	}
	for _, inst := range instances {
		if seen[inst.ServiceID] != 2 {
			t.Fatalf("expected each instance selected exactly twice over two windows, got %v", seen)
		}
	}
}

func TestSelectEmptyListReturnsNoHealthyInstance(t *testing.T) {
	lb := NewLoadBalancer(RoundRobin)
	if _, err := lb.Select("chat", "", nil); err != ErrNoHealthyInstance {
		t.Fatalf("expected ErrNoHealthyInstance, got %v", err)
	}
}

func TestLeastLoadPicksSmallestLoad(t *testing.T) {
	lb := NewLoadBalancer(LeastLoad)
	instances := makeInstances(3)
	instances[0].Load = 5
	instances[1].Load = 1
	instances[2].Load = 9

	inst, err := lb.Select("chat", "", instances)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if inst != instances[1] {
		t.Fatalf("expected instance with smallest load selected")
	}
}

func TestLeastConnTracksOutstandingSeparatelyFromLoad(t *testing.T) {
	lb := NewLoadBalancer(LeastConn)
	instances := makeInstances(2)
	instances[0].Outstanding = 3
	instances[1].Outstanding = 0
	instances[0].Load = 0
	instances[1].Load = 100 // must not affect LeastConn's choice

	inst, err := lb.Select("chat", "", instances)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if inst != instances[1] {
		t.Fatalf("expected LeastConn to pick by Outstanding, not Load")
	}
}

func TestSelectIncrementsLoadAndOutstanding(t *testing.T) {
	lb := NewLoadBalancer(RoundRobin)
	instances := makeInstances(1)
	inst, err := lb.Select("chat", "", instances)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if inst.Load != 1 || inst.Outstanding != 1 {
		t.Fatalf("expected Load and Outstanding incremented, got load=%d outstanding=%d", inst.Load, inst.Outstanding)
	}
	lb.Release(inst)
	if inst.Load != 0 || inst.Outstanding != 0 {
		t.Fatalf("expected Release to decrement both counters, got load=%d outstanding=%d", inst.Load, inst.Outstanding)
	}
}

func TestIPHashIsDeterministicForSameKey(t *testing.T) {
	lb := NewLoadBalancer(IPHash)
	instances := makeInstances(4)

	first, err := lb.Select("chat", "client-9.9.9.9", instances)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	second, err := lb.Select("chat", "client-9.9.9.9", instances)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if first.ServiceID != second.ServiceID {
		t.Fatalf("expected IPHash to route the same key to the same instance")
	}
}
