package routing

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Strategy selects which ServiceInstance a request lands on.
type Strategy int

const (
	RoundRobin Strategy = iota
	Random
	LeastLoad
	LeastConn
	IPHash
)

// ErrNoHealthyInstance is returned when a service name has no eligible
// instances to select from (routed to SERVICE_UNAVAILABLE at the RPC
// boundary).
var ErrNoHealthyInstance = errors.New("routing: no healthy instance available")

// LoadBalancer picks one instance from a healthy list per the
// configured strategy. LeastConn balances by outstanding request
// count, distinct from LeastLoad's caller-adjustable Load counter;
// IPHash routes a given key to a stable instance for as long as the
// instance list is stable.
type LoadBalancer struct {
	strategy Strategy

	mu       sync.Mutex
	counters map[string]uint64 // per-service round-robin cursor
}

// NewLoadBalancer constructs a LoadBalancer using strategy.
func NewLoadBalancer(strategy Strategy) *LoadBalancer {
	return &LoadBalancer{strategy: strategy, counters: make(map[string]uint64)}
}

// Select picks one instance from instances (must be non-empty,
// pre-filtered to healthy) for serviceName, using routingKey for
// IPHash. It increments the chosen instance's Load counter before
// returning it.
func (lb *LoadBalancer) Select(serviceName string, routingKey string, instances []*ServiceInstance) (*ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoHealthyInstance
	}

	var chosen *ServiceInstance
	switch lb.strategy {
	case RoundRobin:
		chosen = instances[lb.nextRoundRobin(serviceName)%uint64(len(instances))]

	case Random:
		chosen = instances[rand.Intn(len(instances))]

	case LeastLoad:
		chosen = instances[0]
		for _, inst := range instances[1:] {
			if atomic.LoadInt64(&inst.Load) < atomic.LoadInt64(&chosen.Load) {
				chosen = inst
			}
		}

	case LeastConn:
		chosen = instances[0]
		for _, inst := range instances[1:] {
			if atomic.LoadInt64(&inst.Outstanding) < atomic.LoadInt64(&chosen.Outstanding) {
				chosen = inst
			}
		}

	case IPHash:
		h := xxhash.Sum64String(routingKey)
		chosen = instances[h%uint64(len(instances))]

	default:
		chosen = instances[0]
	}

	atomic.AddInt64(&chosen.Load, 1)
	atomic.AddInt64(&chosen.Outstanding, 1)
	return chosen, nil
}

// Release decrements the outstanding-request counters incremented by
// Select, once the downstream call this selection was for completes.
func (lb *LoadBalancer) Release(inst *ServiceInstance) {
	atomic.AddInt64(&inst.Load, -1)
	atomic.AddInt64(&inst.Outstanding, -1)
}

func (lb *LoadBalancer) nextRoundRobin(serviceName string) uint64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	n := lb.counters[serviceName]
	lb.counters[serviceName] = n + 1
	return n
}
