/*
healthprobe.go - instance health probing. HealthProber dials each
registered instance's Host:Port and calls the HealthService
CheckStatus method this package also defines (routing/rpc.go), marking
the instance unhealthy on timeout or non-success.
*/
package routing

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dialer abstracts how HealthProber reaches an instance, so tests can
// substitute a fake without a real network dial.
type Dialer func(ctx context.Context, addr string) (StatusServer, func(), error)

// GRPCDialer dials addr with an insecure transport and returns a
// StatusServer client plus a closer for the dialled connection.
func GRPCDialer(ctx context.Context, addr string) (StatusServer, func(), error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return &healthClient{conn: conn}, func() { conn.Close() }, nil
}

type healthClient struct {
	conn *grpc.ClientConn
}

func (h *healthClient) CheckStatus(ctx context.Context, req *Empty) (*StatusResponse, error) {
	resp := new(StatusResponse)
	err := h.conn.Invoke(ctx, "/routing.HealthService/CheckStatus", req, resp)
	return resp, err
}

// HealthProber periodically probes every registered instance's own
// CheckStatus endpoint and updates its healthy flag in the registry.
type HealthProber struct {
	registry *InstanceRegistry
	dial     Dialer
	timeout  time.Duration
}

// NewHealthProber constructs a HealthProber. dial defaults to
// GRPCDialer if nil. timeout defaults to 2s if zero.
func NewHealthProber(registry *InstanceRegistry, dial Dialer, timeout time.Duration) *HealthProber {
	if dial == nil {
		dial = GRPCDialer
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthProber{registry: registry, dial: dial, timeout: timeout}
}

// ProbeAll probes every currently-registered instance once,
// synchronously, marking each healthy or unhealthy in the registry.
func (p *HealthProber) ProbeAll() {
	for _, inst := range p.allInstances() {
		p.probeOne(inst)
	}
}

func (p *HealthProber) allInstances() []*ServiceInstance {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	out := make([]*ServiceInstance, 0, len(p.registry.instances))
	for _, list := range p.registry.instances {
		out = append(out, list...)
	}
	return out
}

func (p *HealthProber) probeOne(inst *ServiceInstance) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	addr := inst.Host + ":" + strconv.Itoa(inst.Port)
	client, closeFn, err := p.dial(ctx, addr)
	if err != nil {
		p.registry.MarkHeartbeat(inst.ServiceID, false)
		return
	}
	defer closeFn()

	status, err := client.CheckStatus(ctx, &Empty{})
	healthy := err == nil && status != nil && status.Healthy
	p.registry.MarkHeartbeat(inst.ServiceID, healthy)
}

// Start launches the periodic probe loop. Returns a stop function.
func (p *HealthProber) Start(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				ticker.Stop()
				return
			case <-ticker.C:
				p.ProbeAll()
			}
		}
	}()
	return func() { close(done) }
}
