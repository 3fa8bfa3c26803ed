package transports

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	cfgpkg "github.com/EUDAT-DTR/DTR-sub001/internal/config"
	"github.com/EUDAT-DTR/DTR-sub001/internal/runtime"
	grpcserver "github.com/EUDAT-DTR/DTR-sub001/internal/server/grpc"
)

func TestGrpcHealth(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := grpcserver.New(rt, nil)
	go func() { _ = srv.Serve(ctx, lis) }()

	h := NewGrpcHealth(func(context.Context) (*grpc.ClientConn, error) {
		return grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer ccancel()
	status, err := h.Check(cctx, grpcserver.ServiceName)
	require.NoError(t, err)
	assert.Equal(t, "SERVING", status)

	raw, err := h.CheckJSON(cctx, "")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "SERVING", body["status"])
}
