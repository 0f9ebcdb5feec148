package grpc

import (
	"context"
	"errors"
	"net"
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

	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

func TestErrorInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"should map not found", errorbank.NotFound("order not found"), codes.NotFound},
		{"should map validation", errorbank.Validation("bad quantity"), codes.InvalidArgument},
		{"should map invalid status", errorbank.InvalidStatus(errorbank.CodeInvalidOrderStatus, "not approved"), codes.FailedPrecondition},
		{"should hide plain errors as internal", errors.New("boom"), codes.Internal},
		{"should keep existing statuses", status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ErrorInterceptor(t.Context(), nil, info, func(context.Context, any) (any, error) {
				return nil, tc.err
			})
			assert.Equal(t, tc.want, status.Code(err))
		})
	}

	t.Run("should pass successful responses through", func(t *testing.T) {
		resp, err := ErrorInterceptor(t.Context(), nil, info, func(context.Context, any) (any, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})
}

func TestHealth(t *testing.T) {
	hs := NewHealth()
	server := NewServer(zap.NewNop(), hs)
	ln := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return ln.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(t.Context(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
