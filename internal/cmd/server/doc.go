// Package serverrun exposes the Run entrypoint used by the CLI to start the
// buildlog runtime with its gRPC and HTTP servers and the retention sweeper.
//
// Example:
//
//	cfg, _ := serverrun.LoadConfig("buildlog.yaml")
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
