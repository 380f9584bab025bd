// Package validate checks user-supplied request fields before they reach the
// query engine.
package validate
