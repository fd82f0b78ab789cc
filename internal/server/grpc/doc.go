// Package grpcserver hosts the gRPC surface: the standard health service
// and a small Builds service that ingests a binlog stream sent as byte
// chunks.
//
// Example:
//
//	s := grpcserver.New(rt, svc, logger)
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
