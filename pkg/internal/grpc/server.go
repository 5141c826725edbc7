package grpc

import (
	"context"
	"net"

	"github.com/spf13/viper"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Probe reports whether a dependency of the service is usable.
type Probe func(ctx context.Context) error

type Server struct {
	health.UnimplementedHealthServer

	srv    *grpc.Server
	probes map[string]Probe
}

func NewGrpc(probes map[string]Probe) *Server {
	server := &Server{
		srv:    grpc.NewServer(),
		probes: probes,
	}

	health.RegisterHealthServer(server.srv, server)

	reflection.Register(server.srv)

	return server
}

func (v *Server) Listen() error {
	listener, err := net.Listen("tcp", viper.GetString("grpc_bind"))
	if err != nil {
		return err
	}

	return v.srv.Serve(listener)
}

func (v *Server) Stop() {
	v.srv.GracefulStop()
}
