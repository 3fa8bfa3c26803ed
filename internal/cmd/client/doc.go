// Package client provides the `dorepo` command-line client.
//
// The CLI talks to the repository HTTP and gRPC endpoints to read the
// transaction log from a terminal. It is primarily intended for operators
// and for debugging replication consumers.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it is read
// from DOREPO_HTTP and defaults to http://127.0.0.1:8080. The gRPC address
// is read from the DOREPO_GRPC environment variable (default 127.0.0.1:50051).
//
// Usage
//
//	dorepo txn page --from 0 --limit 50
//	dorepo txn page --filter 'kind == "DELETE_OBJECT"' --wait
//
//	# Follow the log, resuming from and committing a durable cursor
//	dorepo txn tail --consumer mirror-1 --commit-every 100
//
//	dorepo txn cursor --consumer mirror-1
//	dorepo txn cursor --consumer mirror-1 --commit 42
//
//	dorepo health
package client
