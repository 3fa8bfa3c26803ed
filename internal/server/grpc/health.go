package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/EUDAT-DTR/DTR-sub001/internal/runtime"
	logpkg "github.com/EUDAT-DTR/DTR-sub001/pkg/log"
)

// ServiceName is the health service name reported for the repository.
const ServiceName = "dorepo.Repository"

// healthProbe mirrors runtime health into a grpc health server.
type healthProbe struct {
	rt       *runtime.Runtime
	hs       *health.Server
	interval time.Duration
	logger   logpkg.Logger
}

func (p *healthProbe) check(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := p.rt.CheckHealth(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		p.logger.Warn("repository not serving", logpkg.Err(err))
	}
	p.hs.SetServingStatus("", status)
	p.hs.SetServingStatus(ServiceName, status)
}

// run re-checks health until ctx is done.
func (p *healthProbe) run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.check(ctx)
		}
	}
}
