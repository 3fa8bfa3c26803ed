// Package grpcserver hosts the standard gRPC health service, reporting
// SERVING while the repository runtime is healthy.
//
// Example:
//
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
