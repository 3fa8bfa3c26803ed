package client

import (
	"context"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// grpcAddrFromEnv returns the gRPC server address from DOREPO_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("DOREPO_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// dialGRPCContext dials the repository gRPC endpoint with insecure transport for local/dev.
func dialGRPCContext(context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// HTTPURLFromEnv returns the HTTP API base URL from DOREPO_HTTP or a default.
func HTTPURLFromEnv() string {
	if v := os.Getenv("DOREPO_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
