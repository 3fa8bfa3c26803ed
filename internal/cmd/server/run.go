package serverrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/EUDAT-DTR/DTR-sub001/internal/config"
	"github.com/EUDAT-DTR/DTR-sub001/internal/runtime"
	grpcserver "github.com/EUDAT-DTR/DTR-sub001/internal/server/grpc"
	httpserver "github.com/EUDAT-DTR/DTR-sub001/internal/server/http"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Ready, if set, is called once the runtime is open and servers are
	// starting.
	Ready func(rt *runtime.Runtime)
}

// Run opens the repository, starts gRPC and HTTP servers and blocks until
// ctx is cancelled or a server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	procLogger := opts.Logger
	if procLogger == nil {
		l, err := logpkg.ApplyConfig(&cfg.Log)
		if err != nil {
			return err
		}
		procLogger = l
	}
	// Redirect stdlib logs (e.g., Pebble) to our logger
	restore := logpkg.RedirectStdLog(procLogger)
	defer restore()

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting repository server",
		logpkg.Str("grpc", cfg.GRPCAddr),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("data_dir", cfg.ResolvedDataDir()),
		logpkg.Str("txn_dir", cfg.ResolvedTxnDir()),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	gsrv := grpcserver.New(rt, procLogger)
	hsrv := httpserver.New(rt, procLogger)
	if opts.Ready != nil {
		opts.Ready(rt)
	}

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return gsrv.ListenAndServe(gctx, cfg.GRPCAddr) })
	g.Go(func() error { return hsrv.ListenAndServe(gctx, cfg.HTTPAddr) })
	err = g.Wait()

	// Shut servers down before closing the runtime/DB to avoid races.
	gsrv.Close()
	hsrv.Close()
	if err != nil {
		procLogger.Error("server stopped", logpkg.Err(err))
		return err
	}
	procLogger.Info("server stopped")
	return nil
}
