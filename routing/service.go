/*
Package routing - RoutingService composition.

RoutingService ties the instance registry, load balancer, priority work
queue and metrics together behind three RPC operations: RouteMessage,
BatchRouteMessages, CheckStatus. RouteMessage does not answer
synchronously - it enqueues onto the work queue and blocks on the
item's own response channel, so a high-priority request entering a
backlogged service is answered before lower-priority requests that
arrived earlier.
*/
package routing

import (
	"context"
	"time"
)

// Config is the routing service's external configuration surface.
type Config struct {
	WorkerCount              int
	QueueMaxSize             int
	Strategy                 Strategy
	HeartbeatIntervalSeconds int
	InstanceTimeoutSeconds   int
}

// RoutingService is the composition root: everything RouteMessage,
// BatchRouteMessages and CheckStatus need.
type RoutingService struct {
	registry *InstanceRegistry
	balancer *LoadBalancer
	queue    *WorkQueue
	metrics  *Metrics

	startedAt time.Time
	cfg       Config
}

// NewRoutingService constructs a RoutingService and starts its worker
// pool. Callers separately start the heartbeat sweep (see
// StartHeartbeat) and register it on a grpc.Server via ServiceDesc.
func NewRoutingService(cfg Config) *RoutingService {
	svc := &RoutingService{
		registry:  NewInstanceRegistry(),
		balancer:  NewLoadBalancer(cfg.Strategy),
		metrics:   NewMetrics(),
		startedAt: time.Now(),
		cfg:       cfg,
	}
	svc.queue = NewWorkQueue(cfg.QueueMaxSize, cfg.WorkerCount, svc.process)
	svc.queue.Start()
	return svc
}

// Registry exposes the instance registry for registration/admin use
// (see admin.go) and the health prober.
func (s *RoutingService) Registry() *InstanceRegistry { return s.registry }

// Metrics exposes the metrics collector for JSON/Prometheus export.
func (s *RoutingService) Metrics() *Metrics { return s.metrics }

// Shutdown stops the work queue, abandoning anything still pending.
func (s *RoutingService) Shutdown() {
	s.queue.Shutdown()
}

// RouteMessage is the unary RPC handler:
// (message_id, target_service, payload, priority) ->
// (message_id, error_code, error_message, accepted).
func (s *RoutingService) RouteMessage(ctx context.Context, req *RouteRequest) (*RouteResponse, error) {
	s.metrics.IncRoute()
	start := time.Now()
	defer func() { s.metrics.ObserveLatency(time.Since(start)) }()

	if req.TargetService == "" {
		s.metrics.IncRouteError()
		return &RouteResponse{
			MessageID:    req.MessageID,
			ErrorCode:    ErrorCodeInvalidRequest,
			ErrorMessage: "missing target_service",
			Accepted:     false,
		}, nil
	}

	respCh := make(chan *RouteResponse, 1)
	err := s.queue.Enqueue(&QueueItem{
		Request:  req,
		Priority: req.Priority,
		Respond: func(resp *RouteResponse) {
			respCh <- resp
		},
	})
	if err != nil {
		// Capacity errors (full queue) and shutdown both fail fast,
		// synchronously.
		s.metrics.IncRouteError()
		return &RouteResponse{
			MessageID:    req.MessageID,
			ErrorCode:    ErrorCodeInternal,
			ErrorMessage: err.Error(),
			Accepted:     false,
		}, nil
	}

	select {
	case resp := <-respCh:
		if !resp.Accepted {
			s.metrics.IncRouteError()
		}
		return resp, nil
	case <-ctx.Done():
		s.metrics.IncRouteError()
		return &RouteResponse{
			MessageID:    req.MessageID,
			ErrorCode:    ErrorCodeInternal,
			ErrorMessage: ctx.Err().Error(),
			Accepted:     false,
		}, nil
	}
}

// process is the work queue's Processor hook: it selects an instance
// for req.TargetService and reports the outcome. Load-balancer
// selection happens here, dequeued in (priority, timestamp) order by
// one of the queue's worker goroutines.
func (s *RoutingService) process(req *RouteRequest) *RouteResponse {
	s.metrics.IncMessage()

	instances := s.registry.Healthy(req.TargetService)
	inst, err := s.balancer.Select(req.TargetService, req.MessageID, instances)
	if err != nil {
		s.metrics.IncMessageError()
		return &RouteResponse{
			MessageID:    req.MessageID,
			ErrorCode:    ErrorCodeServiceUnavailable,
			ErrorMessage: err.Error(),
			Accepted:     false,
		}
	}

	// ErrorMessage doubles as a diagnostic pointer to the chosen
	// instance - the RPC contract reports routing success, not
	// downstream processing, so there is no dedicated
	// "selected instance" field to populate.
	return &RouteResponse{
		MessageID:    req.MessageID,
		ErrorCode:    ErrorCodeSuccess,
		Accepted:     true,
		ErrorMessage: inst.ServiceID,
	}
}

// CheckStatus reports the healthy flag, current queue depth, and
// uptime.
func (s *RoutingService) CheckStatus(ctx context.Context, req *Empty) (*StatusResponse, error) {
	return &StatusResponse{
		Healthy:       true,
		QueueDepth:    s.queue.Len(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}, nil
}

// StartHeartbeat launches the periodic instance-registry sweep: every
// interval, instances not refreshed within timeout are dropped.
// Returns a stop function.
func (s *RoutingService) StartHeartbeat(interval, timeout time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				ticker.Stop()
				return
			case <-ticker.C:
				s.registry.Sweep(timeout)
				s.metrics.SetServiceCount(s.registry.Count())
			}
		}
	}()
	return func() { close(done) }
}
