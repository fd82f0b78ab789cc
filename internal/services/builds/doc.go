// Package buildsvc ingests event streams into per-build logs and serves
// them back: filtered event pages for readers and re-encoded streams for
// export. HTTP, gRPC and CLI front ends share it.
//
//	svc := buildsvc.New(rt, logger)
//	info, _ := svc.Ingest(ctx, "compiler", "ci.blog", f)
//	page, _ := svc.Events(ctx, "compiler", info.ID, buildsvc.Query{Filter: "level >= 2"})
//	_, _ = svc.Export(ctx, "compiler", info.ID, w, 0)
package buildsvc
