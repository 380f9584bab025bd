// Package fetch downloads remote documents for tree building.
//
// Sheepdog wraps a resty client whose transport retries transient failures
// (go-retryablehttp). Each remote host gets its own circuit breaker, and an
// optional client-side rate limit keeps crawls polite.
package fetch
