// Package server wires the query service together.
//
// NewServer builds the document fetcher, tree builder and query engine from
// configuration, mounts the API handlers behind the middleware stack
// (recovery, request IDs, access log, metrics, CORS, rate limiting) and
// exposes Prometheus metrics on /metrics.
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg, logger)
//	go srv.Run()
//	...
//	srv.Shutdown(ctx)
package server
