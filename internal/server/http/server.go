package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/EUDAT-DTR/DTR-sub001/internal/runtime"
	"github.com/EUDAT-DTR/DTR-sub001/internal/server/http/controllers"
	"github.com/EUDAT-DTR/DTR-sub001/internal/services/replication"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	logger = logger.With(logpkg.Component("http"))
	cfg := rt.Config()
	repl := replication.New(rt.Queue(), replication.Options{
		MaxBatch:    cfg.Replication.MaxBatch,
		MaxWait:     cfg.ReplicationMaxWait(),
		FlushWindow: 10 * time.Millisecond,
		Logger:      logger,
		Metrics:     rt.Metrics(),
	})
	mux := http.NewServeMux()
	controllers.NewControllerRegistry(rt, repl, logger).RegisterAllRoutes(mux)
	return &Server{
		rt:     rt,
		logger: logger,
		srv: &http.Server{
			Handler:           cors(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the root handler; tests drive it without a listener.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
