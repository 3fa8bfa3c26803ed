// Package httpserver provides the REST gateway of a repository: health and
// metrics, paged and SSE-tailed transaction reads for replicas, consumer
// cursors, ranged element reads and a JSON operation envelope.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
