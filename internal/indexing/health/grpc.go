package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the standard gRPC health service. The empty service
// name reports the overall status; each scanner is its own service.
type GRPCServer struct {
	monitor  *Monitor
	health   *grpchealth.Server
	server   *grpc.Server
	port     int
	interval time.Duration
}

// NewGRPCServer creates a gRPC health server.
func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{
		monitor:  monitor,
		health:   hs,
		server:   srv,
		port:     port,
		interval: 10 * time.Second,
	}
}

// Start serves until Stop is called, refreshing statuses in the background
// until ctx is done.
func (g *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			g.Update(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return g.server.Serve(lis)
}

// Update copies the monitor's report into the health service.
func (g *GRPCServer) Update(ctx context.Context) {
	report := g.monitor.Report(ctx)
	g.health.SetServingStatus("", servingStatus(report.SystemStatus))
	for name, h := range report.Scanners {
		g.health.SetServingStatus(name, servingStatus(h.Status))
	}
}

// Stop shuts the server down, marking everything not serving first.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

func servingStatus(s SystemStatus) healthpb.HealthCheckResponse_ServingStatus {
	if s == StatusCritical {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
