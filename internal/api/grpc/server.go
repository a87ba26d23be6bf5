// Package grpcapi hosts the gRPC health and reflection services that
// orchestrators query alongside the HTTP API.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"voice-search-assistant/internal/observability"
	"voice-search-assistant/internal/observability/metrics"
)

// ServiceName is the health-checked service name of the assistant.
const ServiceName = "voicesearch.Assistant"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates the gRPC server with health checking and reflection enabled.
func New(m *metrics.Metrics) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	s := &Server{grpc: g, health: hs}
	s.SetServing(false)
	return s
}

// SetServing updates the reported health of the service.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
	return s.grpc.Serve(lis)
}

// Stop reports NOT_SERVING and stops the server gracefully.
func (s *Server) Stop() {
	s.SetServing(false)
	s.grpc.GracefulStop()
}
