// Package metrics exposes Prometheus collectors for the transaction queues,
// the embedded store and the storage facade.
package metrics
