package grpcapi

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Server hosts the Predictor service together with the standard health and
// reflection services.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewServer registers svc on a new grpc.Server. creds may be nil for
// plaintext.
func NewServer(svc PredictorServer, creds credentials.TransportCredentials, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor(logger))}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&ServiceDesc, svc)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(gs)

	return &Server{grpc: gs, health: hs, logger: logger}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc server listening", "address", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks the server NOT_SERVING and drains in-flight calls, forcing
// a hard stop after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.logger.Info("shutting down grpc server")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("grpc graceful stop timed out")
		s.grpc.Stop()
	}
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
