// Package http implements the JSON API of the query service.
//
// Every endpoint that reads a document accepts either a url, fetched through
// the configured Fetcher, or inline html. Failures are reported as
// ErrorResponse bodies whose kind distinguishes query errors (400), documents
// that cannot be queried (422) and upstream failures (502).
//
// GET /live upgrades to a WebSocket. A client sends a load frame with a
// source, then any number of query frames that run against the loaded tree.
package http
