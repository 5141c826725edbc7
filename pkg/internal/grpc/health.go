package grpc

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	health "google.golang.org/grpc/health/grpc_health_v1"
)

// status runs the probe named by service, or every probe for the empty
// service name.
func (v *Server) status(ctx context.Context, service string) health.HealthCheckResponse_ServingStatus {
	if len(service) > 0 {
		probe, ok := v.probes[service]
		if !ok {
			return health.HealthCheckResponse_SERVICE_UNKNOWN
		}
		if err := probe(ctx); err != nil {
			log.Warn().Err(err).Str("service", service).Msg("Health probe failed...")
			return health.HealthCheckResponse_NOT_SERVING
		}
		return health.HealthCheckResponse_SERVING
	}

	for name, probe := range v.probes {
		if err := probe(ctx); err != nil {
			log.Warn().Err(err).Str("service", name).Msg("Health probe failed...")
			return health.HealthCheckResponse_NOT_SERVING
		}
	}
	return health.HealthCheckResponse_SERVING
}

func (v *Server) Check(ctx context.Context, request *health.HealthCheckRequest) (*health.HealthCheckResponse, error) {
	return &health.HealthCheckResponse{
		Status: v.status(ctx, request.GetService()),
	}, nil
}

func (v *Server) Watch(request *health.HealthCheckRequest, server health.Health_WatchServer) error {
	for {
		if server.Send(&health.HealthCheckResponse{
			Status: v.status(server.Context(), request.GetService()),
		}) != nil {
			break
		}
		time.Sleep(1000 * time.Millisecond)
	}

	return nil
}
