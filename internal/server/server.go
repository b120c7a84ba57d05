package server

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer wraps a gRPC server and listener. It serves the standard
// health service plus reflection so vaillantctl can invoke methods
// without compiled stubs.
type GRPCServer struct {
	Server   *grpc.Server
	Health   *health.Server
	Listener net.Listener
}

func NewGRPCServer(addr string) (*GRPCServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)
	reflection.Register(s)

	return &GRPCServer{Server: s, Health: healthServer, Listener: ln}, nil
}

func (s *GRPCServer) Serve() error {
	return s.Server.Serve(s.Listener)
}

// SetServing flips the named service's health status.
func (s *GRPCServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.Health.SetServingStatus(service, status)
}
