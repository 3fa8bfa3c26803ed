package transports

import (
	"context"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// GrpcHealth implements HealthTransport with the standard gRPC health service.
type GrpcHealth struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGrpcHealth constructs a health transport using the provided dialer.
func NewGrpcHealth(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcHealth {
	return &GrpcHealth{dial: dial}
}

func (t *GrpcHealth) check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()
	return healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
}

// Check returns the serving status name of service.
func (t *GrpcHealth) Check(ctx context.Context, service string) (string, error) {
	res, err := t.check(ctx, service)
	if err != nil {
		return "", err
	}
	return res.GetStatus().String(), nil
}

// CheckJSON returns the raw health response rendered with protojson.
func (t *GrpcHealth) CheckJSON(ctx context.Context, service string) ([]byte, error) {
	res, err := t.check(ctx, service)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(res)
}
