package grpcapi

import (
	"context"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-checked service name; "" reports the whole
// server.
const ServiceName = "accessmon.v1.AccessMonitor"

// HealthServer exposes the standard gRPC health protocol so health checkers can tell
// when the process stops taking sessions during shutdown.
type HealthServer struct {
	addr   string
	logger *log.Logger
	grpc   *grpc.Server
	health *health.Server
}

func NewHealthServer(addr string, logger *log.Logger) *HealthServer {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &HealthServer{addr: addr, logger: logger, grpc: gs, health: hs}
	s.SetServing(true)
	return s
}

// Start listens on the configured address and serves in the background.
func (s *HealthServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		s.logger.Printf("grpc health listening on %s", lis.Addr())
		if err := s.Serve(lis); err != nil {
			s.logger.Printf("grpc server error: %v", err)
		}
	}()
	return nil
}

// Serve blocks serving on lis until Stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop marks everything NOT_SERVING and stops the server gracefully, falling
// back to a hard stop when ctx expires first.
func (s *HealthServer) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}
}
