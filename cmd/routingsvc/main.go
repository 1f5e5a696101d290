/*
Routing-service process entry point.

Exposes RoutingService over gRPC (RouteMessage, BatchRouteMessages,
CheckStatus), plus the AdminService from routing/admin.go for
multi-process instance registration. The health prober is a client of
the HealthService (routing/rpc.go) that each instance serves. Metrics are exported two ways: a small JSON endpoint with the
named counters, and a Prometheus text endpoint for scraping.

=== Startup sequence ===

1. Parse flags
2. Construct RoutingService
3. Start the gRPC server (RoutingService + AdminService)
4. Start the heartbeat sweep and health prober
5. Start the metrics HTTP server
6. Wait for a shutdown signal
7. Stop everything in reverse order
*/
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nightfall-labs/imgw/routing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
)

// Config is the routing service's command-line configuration.
type Config struct {
	RPCAddr string

	WorkerThreadCount        int
	QueueMaxSize             int
	LoadBalanceStrategy      string
	HeartbeatIntervalSeconds int
	InstanceTimeoutSeconds   int

	MetricsAddr string
}

func parseStrategy(name string) routing.Strategy {
	switch strings.ToLower(name) {
	case "round_robin", "roundrobin":
		return routing.RoundRobin
	case "random":
		return routing.Random
	case "least_load", "leastload":
		return routing.LeastLoad
	case "least_conn", "leastconn":
		return routing.LeastConn
	case "ip_hash", "iphash":
		return routing.IPHash
	default:
		log.Printf("[routingsvc] unknown strategy %q, defaulting to round_robin", name)
		return routing.RoundRobin
	}
}

func main() {
	rpcAddr := flag.String("rpc-addr", ":9090", "gRPC listen address")
	workerCount := flag.Int("worker-thread-count", 4, "work queue worker pool size")
	queueMaxSize := flag.Int("queue-max-size", 10000, "work queue capacity")
	strategy := flag.String("load-balance-strategy", "round_robin", "round_robin|random|least_load|least_conn|ip_hash")
	heartbeatInterval := flag.Int("heartbeat-interval-seconds", 10, "instance heartbeat sweep interval")
	instanceTimeout := flag.Int("instance-timeout-seconds", 30, "instance considered dead after this many seconds unseen")
	metricsAddr := flag.String("metrics-addr", ":9091", "metrics HTTP listen address")
	flag.Parse()

	config := &Config{
		RPCAddr:                  *rpcAddr,
		WorkerThreadCount:        *workerCount,
		QueueMaxSize:             *queueMaxSize,
		LoadBalanceStrategy:      *strategy,
		HeartbeatIntervalSeconds: *heartbeatInterval,
		InstanceTimeoutSeconds:   *instanceTimeout,
		MetricsAddr:              *metricsAddr,
	}

	svc := routing.NewRoutingService(routing.Config{
		WorkerCount:              config.WorkerThreadCount,
		QueueMaxSize:             config.QueueMaxSize,
		Strategy:                 parseStrategy(config.LoadBalanceStrategy),
		HeartbeatIntervalSeconds: config.HeartbeatIntervalSeconds,
		InstanceTimeoutSeconds:   config.InstanceTimeoutSeconds,
	})

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&routing.ServiceDesc, svc)
	grpcServer.RegisterService(&routing.AdminServiceDesc, svc)

	lis, err := net.Listen("tcp", config.RPCAddr)
	if err != nil {
		log.Fatalf("[routingsvc] failed to listen on %s: %v", config.RPCAddr, err)
	}
	go func() {
		log.Printf("[routingsvc] gRPC serving on %s", config.RPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("[routingsvc] gRPC server stopped: %v", err)
		}
	}()

	stopHeartbeat := svc.StartHeartbeat(
		time.Duration(config.HeartbeatIntervalSeconds)*time.Second,
		time.Duration(config.InstanceTimeoutSeconds)*time.Second,
	)

	prober := routing.NewHealthProber(svc.Registry(), nil, 2*time.Second)
	stopProber := prober.Start(time.Duration(config.HeartbeatIntervalSeconds) * time.Second)

	metricsServer := startMetricsServer(config.MetricsAddr, svc)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[routingsvc] shutting down...")
	stopProber()
	stopHeartbeat()
	svc.Shutdown()
	grpcServer.GracefulStop()
	metricsServer.Close()
	log.Println("[routingsvc] stopped")
}

// startMetricsServer serves the JSON counter snapshot at /metrics.json
// and a Prometheus text exposition at /metrics.
func startMetricsServer(addr string, svc *routing.RoutingService) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(svc.Metrics().Snapshot())
	})
	mux.Handle("/metrics", promhttp.HandlerFor(svc.Metrics().Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("[routingsvc] metrics serving on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[routingsvc] metrics server stopped: %v", err)
		}
	}()
	return srv
}
