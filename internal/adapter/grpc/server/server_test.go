package server

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, apiKey string, ready *atomic.Bool) (*GRPCServer, healthpb.HealthClient) {
	t.Helper()

	srv := NewGRPCServer(apiKey, func(ctx context.Context) bool { return ready.Load() }, zap.NewNop())
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestGRPCServer_HealthFollowsReadiness(t *testing.T) {
	var ready atomic.Bool
	srv, client := startServer(t, "", &ready)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""), "not serving before the first sync")

	ready.Store(true)
	srv.Sync(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))

	ready.Store(false)
	srv.Sync(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
}

func TestGRPCServer_UnknownService(t *testing.T) {
	var ready atomic.Bool
	_, client := startServer(t, "", &ready)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "other.Service"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCServer_HealthNeedsNoKey(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	srv, client := startServer(t, "secret", &ready)
	srv.Sync(context.Background())

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
}
