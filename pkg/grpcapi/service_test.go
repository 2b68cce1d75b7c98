package grpcapi

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/inference"
	"github.com/HatiCode/geostorm/pkg/models"
	"github.com/HatiCode/geostorm/pkg/pipeline"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer serves a pipeline backed by a linear model that returns
// intercept + bz_gsm, and returns a connected client.
func startServer(t *testing.T, adapter *inference.Adapter) (*Client, *grpc.ClientConn) {
	t.Helper()

	p := pipeline.New(adapter, nil, discard())
	srv := NewServer(NewService(p), nil, discard())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.Stop(time.Second) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn), conn
}

func loadedAdapter(t *testing.T, intercept float64) *inference.Adapter {
	t.Helper()
	a := inference.New(discard())
	m := models.NewLinearModel(intercept, []float64{0, 0, 0, 1, 0})
	require.NoError(t, a.Load(context.Background(), inference.StaticLoader{Model: m, Source: "test"}))
	return a
}

func TestPredict(t *testing.T) {
	client, _ := startServer(t, loadedAdapter(t, 2.5))

	got, err := client.Predict(context.Background(), map[string]any{
		"speed": 400.0, "bt": 2.0, "temperature": 50000.0, "bz_gsm": 1.0, "density": 5.0,
	})
	require.NoError(t, err)

	assert.Equal(t, 3.5, got["prediction"])
	assert.Equal(t, "Quiet", got["classification"])
	assert.Equal(t, "No disturbance", got["effects"])
}

func TestPredict_NumericStrings(t *testing.T) {
	client, _ := startServer(t, loadedAdapter(t, 0))

	got, err := client.Predict(context.Background(), map[string]any{
		"speed": "400", "bt": "2", "temperature": "50000", "bz_gsm": "-60", "density": "5",
	})
	require.NoError(t, err)
	assert.Equal(t, -60.0, got["prediction"])
	assert.Equal(t, "Strong", got["classification"])
}

func TestPredict_InvalidArgument(t *testing.T) {
	client, _ := startServer(t, loadedAdapter(t, 0))

	_, err := client.Predict(context.Background(), map[string]any{"speed": 400.0})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	assert.Contains(t, st.Message(), features.Bt)
}

func TestPredict_Unavailable(t *testing.T) {
	client, _ := startServer(t, inference.New(discard()))

	_, err := client.Predict(context.Background(), map[string]any{
		"speed": 400.0, "bt": 2.0, "temperature": 50000.0, "bz_gsm": 1.0, "density": 5.0,
	})
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, "model unavailable", status.Convert(err).Message())
}

func TestHealth(t *testing.T) {
	_, conn := startServer(t, loadedAdapter(t, 0))

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{inference.ErrInternal, codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{&pipeline.RowError{Row: 1, Err: context.Canceled}, codes.Canceled},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(toStatus(tt.err)), "toStatus(%v)", tt.err)
	}
	assert.Equal(t, "internal server error", status.Convert(toStatus(inference.ErrInternal)).Message())
}
