// Package runtime wires config, the object store, the transaction log and
// the logging facade into a single repository instance. It exposes
// Open/Close, health checks and accessors used by the servers and CLI.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	_, _ = rt.StorageLog().CreateObject(ctx, "obj", "", true, 0)
package runtime
