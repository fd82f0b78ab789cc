// Package httpserver exposes buildlog over HTTP with a chi router: health,
// projects, stream ingest, filtered event listing, stream export and
// Prometheus metrics.
package httpserver
