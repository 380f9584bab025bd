package http

import (
	"errors"
	"fmt"

	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
	"github.com/scrapegoat/backend/internal/shared/validate"
)

// Source names the document a request operates on. Exactly one of URL and
// HTML must be set. Scope optionally roots the tree at the first element
// matching a CSS selector. Sanitize strips scripts, styles and event
// handlers before the tree is built.
type Source struct {
	URL      string `json:"url"`
	HTML     string `json:"html"`
	Scope    string `json:"scope"`
	Sanitize bool   `json:"sanitize"`
}

func (s Source) validate() error {
	return errors.Join(validate.URL(s.URL), validate.Selector(s.Scope))
}

// BuildTreeRequest is the body of POST /dom-tree/build.
type BuildTreeRequest struct {
	Source
}

// DOMTree is a fully projected document tree.
type DOMTree struct {
	URL  string         `json:"url,omitempty"`
	Root map[string]any `json:"root"`
}

// NodeOutput renames the extracted Location field to Key in scraped rows.
type NodeOutput struct {
	Location string `json:"location" binding:"required"`
	Key      string `json:"key" binding:"required"`
}

// RetrievalInstruction is one selection query plus the field it extracts.
// Flags may set "no-children" or "no-grandchildren" to true.
type RetrievalInstruction struct {
	NodeQuery string         `json:"node_query" binding:"required"`
	Output    NodeOutput     `json:"output"`
	Flags     map[string]any `json:"flags"`
}

// ScrapeRequest is the body of POST /scrape.
type ScrapeRequest struct {
	Source
	RetrievalInstructions []RetrievalInstruction `json:"retrieval_instructions" binding:"required,min=1,dive"`
}

func (r *ScrapeRequest) validate() error {
	if err := r.Source.validate(); err != nil {
		return err
	}
	for i, inst := range r.RetrievalInstructions {
		if err := errors.Join(
			validate.Query(inst.NodeQuery),
			validate.Location(inst.Output.Location, "output.location"),
			validate.Field(inst.Output.Key, "output.key"),
		); err != nil {
			return fmt.Errorf("retrieval instruction %d: %w", i, err)
		}
	}
	return nil
}

// ScrapedDataset is the response of POST /scrape.
type ScrapedDataset struct {
	URL  string           `json:"url,omitempty"`
	Data []map[string]any `json:"data"`
}

// QueryRequest is the body of POST /query. Format selects an encoded
// response body (json, csv, yaml, toml) instead of the JSON envelope.
type QueryRequest struct {
	Source
	Query  string `json:"query" binding:"required"`
	Format string `json:"format"`
	Indent bool   `json:"indent"`
}

func (r *QueryRequest) validate() error {
	return errors.Join(r.Source.validate(), validate.Query(r.Query))
}

// QueryResponse is the default response of POST /query.
type QueryResponse struct {
	Count   int              `json:"count"`
	Results []map[string]any `json:"results"`
}

// CompileRequest is the body of POST /compile.
type CompileRequest struct {
	Query string `json:"query" binding:"required"`
}

func (r *CompileRequest) validate() error {
	return validate.Query(r.Query)
}

// CompileResponse lists the compiled instructions in program order.
type CompileResponse struct {
	Instructions []map[string]any `json:"instructions"`
}

// ErrorResponse is the body of every failed request. Line and Column point
// into the query for lexical and syntax errors.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Metrics  monitoring.MetricsSnapshot `json:"metrics"`
	Breakers map[string]string          `json:"breakers,omitempty"`
}
