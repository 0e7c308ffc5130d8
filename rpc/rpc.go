// rpc/rpc.go
package rpc

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/petlobby/logger"
)

// Server manages the gRPC listener.
type Server struct {
	listener net.Listener
	address  string
	grpc     *grpc.Server
	health   *health.Server
}

// NewServer listens on addr and registers the admin and health services.
func NewServer(addr string, emitter Emitter, token string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewServerWithListener(listener, emitter, token), nil
}

// NewServerWithListener is NewServer over an existing listener.
func NewServerWithListener(listener net.Listener, emitter Emitter, token string) *Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor,
		tokenInterceptor(token),
	))
	RegisterAdminServer(gs, NewAdminService(emitter))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(AdminServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		grpc:     gs,
		health:   hs,
	}
}

// Start serves until Stop is called.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Log.Errorf("RPC server error: %v", err)
		return
	}
	logger.Log.Info("RPC server listener closed.")
}

// Stop drains in-flight calls and closes the listener.
func (s *Server) Stop() {
	logger.Log.Info("Stopping RPC server.")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		logger.Log.Warnw("rpc failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	} else {
		logger.Log.Debugw("rpc", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}
