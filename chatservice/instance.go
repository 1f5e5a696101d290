/*
instance.go makes a chatservice.Handler a registrable routing
ServiceInstance: it runs a small health endpoint the routing service's
HealthProber can call, and registers/unregisters itself with the
routing service's AdminService.
*/
package chatservice

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/nightfall-labs/imgw/routing"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Instance wraps a Handler with the bookkeeping needed to register as
// a routing.ServiceInstance: its own id, its own health-check gRPC
// server, and a client for the routing service's AdminService.
type Instance struct {
	ServiceID   string
	ServiceName string
	Host        string
	Port        int

	Handler *Handler

	healthSrv *grpc.Server
	startedAt time.Time
}

// NewInstance constructs an Instance. serviceID should be globally
// unique (pkg/idgen.ShortID is a reasonable source); host/port is where
// this process's health endpoint listens.
func NewInstance(serviceID, serviceName, host string, port int, handler *Handler) *Instance {
	return &Instance{
		ServiceID:   serviceID,
		ServiceName: serviceName,
		Host:        host,
		Port:        port,
		Handler:     handler,
	}
}

// CheckStatus implements routing.StatusServer: this instance is healthy
// as long as the process is up and able to answer.
func (i *Instance) CheckStatus(ctx context.Context, req *routing.Empty) (*routing.StatusResponse, error) {
	return &routing.StatusResponse{
		Healthy:       true,
		QueueDepth:    0,
		UptimeSeconds: time.Since(i.startedAt).Seconds(),
	}, nil
}

// ServeHealth starts this instance's HealthService endpoint on
// Host:Port. Non-blocking.
func (i *Instance) ServeHealth() error {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", i.Host, i.Port))
	if err != nil {
		return fmt.Errorf("chatservice: listen for health endpoint: %w", err)
	}
	i.startedAt = time.Now()
	i.healthSrv = grpc.NewServer()
	i.healthSrv.RegisterService(&routing.HealthServiceDesc, i)

	go func() {
		if err := i.healthSrv.Serve(lis); err != nil {
			log.Printf("[ChatInstance] health server stopped: %v", err)
		}
	}()
	log.Printf("[ChatInstance] %s health endpoint on %s:%d", i.ServiceID, i.Host, i.Port)
	return nil
}

// StopHealth stops the health endpoint.
func (i *Instance) StopHealth() {
	if i.healthSrv != nil {
		i.healthSrv.GracefulStop()
	}
}

// Register dials the routing service's admin address and registers
// this instance under ServiceName.
func (i *Instance) Register(ctx context.Context, routingAdminAddr string) error {
	conn, err := grpc.NewClient(routingAdminAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("chatservice: dial routing admin: %w", err)
	}
	client := routing.NewAdminClient(conn)
	_, err = client.Register(ctx, &routing.RegisterRequest{
		ServiceID:   i.ServiceID,
		ServiceName: i.ServiceName,
		Host:        i.Host,
		Port:        i.Port,
	})
	conn.Close()
	if err != nil {
		return fmt.Errorf("chatservice: register with routing service: %w", err)
	}
	log.Printf("[ChatInstance] registered %s as %s", i.ServiceID, i.ServiceName)
	return nil
}

// Unregister dials the routing service's admin address and removes
// this instance.
func (i *Instance) Unregister(ctx context.Context, routingAdminAddr string) error {
	conn, err := grpc.NewClient(routingAdminAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	client := routing.NewAdminClient(conn)
	_, err = client.Unregister(ctx, &routing.UnregisterRequest{ServiceID: i.ServiceID})
	conn.Close()
	return err
}
