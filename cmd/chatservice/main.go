/*
Chat service-instance process entry point: a downstream ServiceInstance
the routing service can select via RouteMessage. Wraps a
chatservice.Handler (the same chat business logic cmd/gateway wires
directly into the gateway process) in a chatservice.Instance so it can
run as its own process, register with the routing service's
AdminService, and answer CheckStatus probes.
*/
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nightfall-labs/imgw/chatservice"
	"github.com/nightfall-labs/imgw/pkg/idgen"
	"github.com/nightfall-labs/imgw/pkg/redis"
)

func main() {
	serviceName := flag.String("service-name", "chatservice", "service name registered with the routing service")
	host := flag.String("host", "127.0.0.1", "health endpoint bind host")
	port := flag.Int("port", 9200, "health endpoint bind port")
	gatewayID := flag.String("gateway-id", "chatservice_1", "gateway id this instance publishes under for Pub/Sub routing")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "Redis address")
	routingAdminAddr := flag.String("routing-admin-addr", "127.0.0.1:9090", "routing service AdminService address")
	flag.Parse()

	client, err := redis.Open(redis.Config{Addr: *redisAddr, PoolSize: 50})
	if err != nil {
		log.Fatalf("[chatservice] failed to connect to redis: %v", err)
	}
	defer client.Close()

	session := chatservice.NewSessionManager(client, *gatewayID)
	pubsub := chatservice.NewPubSubManager(client, *gatewayID)
	sequence := chatservice.NewSequenceManager(client)
	offline := chatservice.NewOfflineManager(client)
	handler := chatservice.NewHandler(*gatewayID, session, pubsub, sequence, offline)

	serviceID := idgen.ShortID()
	inst := chatservice.NewInstance(serviceID, *serviceName, *host, *port, handler)

	if err := inst.ServeHealth(); err != nil {
		log.Fatalf("[chatservice] failed to start health endpoint: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := inst.Register(ctx, *routingAdminAddr); err != nil {
		cancel()
		log.Fatalf("[chatservice] failed to register with routing service: %v", err)
	}
	cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[chatservice] shutting down...")
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := inst.Unregister(ctx, *routingAdminAddr); err != nil {
		log.Printf("[chatservice] failed to unregister cleanly: %v", err)
	}
	cancel()
	inst.StopHealth()
	log.Println("[chatservice] stopped")
}
