package grpcserver

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/EUDAT-DTR/DTR-sub001/internal/runtime"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

const healthInterval = 5 * time.Second

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	grpc   *grpc.Server
	health *health.Server
	probe  *healthProbe
	lis    net.Listener
}

// New constructs a gRPC server and registers the health service.
func New(rt *runtime.Runtime, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	hs := health.NewServer()
	s := &Server{
		rt:     rt,
		grpc:   grpc.NewServer(opts...),
		health: hs,
		probe: &healthProbe{
			rt:       rt,
			hs:       hs,
			interval: healthInterval,
			logger:   logger.With(logpkg.Component("grpc")),
		},
	}
	healthpb.RegisterHealthServer(s.grpc, hs)
	s.probe.check(context.Background())
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.probe.run(pctx)

	s.probe.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
