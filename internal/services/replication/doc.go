// Package replication serves the transaction log to remote replicas: bounded
// pages with CEL filters, blocking tails, and durable consumer cursors.
package replication
