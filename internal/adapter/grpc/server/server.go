package server

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/seu-repo/asistente-gemini/internal/adapter/grpc/interceptors"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "asistente.AlexaWebhook"

// ReadinessFunc reports whether the skill can serve traffic.
type ReadinessFunc func(ctx context.Context) bool

// GRPCServer speaks the standard grpc.health.v1 protocol so orchestrators
// can probe the skill over gRPC. Reflection is exposed only behind the
// admin API key.
type GRPCServer struct {
	server    *grpc.Server
	health    *grpchealth.Server
	readiness ReadinessFunc
	log       *zap.Logger
}

func NewGRPCServer(apiKey string, readiness ReadinessFunc, log *zap.Logger) *GRPCServer {
	unary := []grpc.UnaryServerInterceptor{
		interceptors.UnaryLoggingInterceptor(log),
		interceptors.UnaryMetricsInterceptor(),
		interceptors.UnaryAuthInterceptor(apiKey),
	}
	stream := []grpc.StreamServerInterceptor{
		interceptors.StreamLoggingInterceptor(log),
		interceptors.StreamMetricsInterceptor(),
		interceptors.StreamAuthInterceptor(apiKey),
	}

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)

	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Enable reflection for debugging (e.g. grpcurl)
	if apiKey != "" {
		reflection.Register(s)
	}

	srv := &GRPCServer{
		server:    s,
		health:    hs,
		readiness: readiness,
		log:       log,
	}
	srv.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return srv
}

// Sync polls readiness once and publishes it as the serving status.
func (s *GRPCServer) Sync(ctx context.Context) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.readiness == nil || s.readiness(ctx) {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.setStatus(status)
}

// Run keeps the serving status in sync until ctx is done.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		s.Sync(checkCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *GRPCServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	s.log.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop flips every service to NOT_SERVING before draining connections.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
