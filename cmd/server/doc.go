// Command server runs the ScrapeGoat query service.
//
// Configuration comes from the environment (PORT, HOST, LOG_LEVEL, LOG_DEV,
// RATE_LIMIT_*, FETCH_*, MAX_DOCUMENT_BYTES, ID_SCHEME, OUTPUT_DIR); the
// -port, -host and -dev flags override it.
//
//	./server -port 8000
//	./server -dev
//
// SIGINT and SIGTERM drain in-flight requests before exiting.
package main
