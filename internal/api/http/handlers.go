package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scrapegoat/backend/internal/builder"
	"github.com/scrapegoat/backend/internal/engine"
	"github.com/scrapegoat/backend/internal/fetch"
	"github.com/scrapegoat/backend/internal/goatspeak"
	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
	"github.com/scrapegoat/backend/internal/infrastructure/resilience"
	"github.com/scrapegoat/backend/internal/output"
	"github.com/scrapegoat/backend/internal/tree"
)

// Fetcher downloads a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// breakerReporter is implemented by fetchers that guard hosts with circuit
// breakers.
type breakerReporter interface {
	BreakerStates() map[string]resilience.State
}

// Handlers contains all HTTP handlers
type Handlers struct {
	engine   *engine.Engine
	gardener *builder.Gardener
	fetcher  Fetcher
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	origins  []string
}

// NewHandlers creates a new handler set. metrics and logger may be nil.
func NewHandlers(
	eng *engine.Engine,
	gardener *builder.Gardener,
	fetcher Fetcher,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		engine:   eng,
		gardener: gardener,
		fetcher:  fetcher,
		metrics:  metrics,
		logger:   logger,
	}
}

// Health handles liveness checks
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// Stats reports query counters and per-host breaker states
func (h *Handlers) Stats(c *gin.Context) {
	var resp StatsResponse
	if h.metrics != nil {
		resp.Metrics = h.metrics.Snapshot()
	}
	if br, ok := h.fetcher.(breakerReporter); ok {
		states := br.BreakerStates()
		resp.Breakers = make(map[string]string, len(states))
		for host, state := range states {
			resp.Breakers[host] = state.String()
		}
	}
	c.JSON(http.StatusOK, resp)
}

// BuildTree returns the full projection of a document tree
func (h *Handlers) BuildTree(c *gin.Context) {
	var req BuildTreeRequest
	if !h.bind(c, &req) {
		return
	}

	root, err := h.loadTree(c.Request.Context(), req.Source)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, DOMTree{URL: req.URL, Root: root.Project(nil, tree.ExtractFlags{})})
}

// Scrape runs each retrieval instruction against one tree and concatenates
// the extracted rows
func (h *Handlers) Scrape(c *gin.Context) {
	var req ScrapeRequest
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	queries := make([][]goatspeak.Instruction, len(req.RetrievalInstructions))
	for i, inst := range req.RetrievalInstructions {
		insts, err := h.compile(retrievalQuery(inst))
		if err != nil {
			h.fail(c, fmt.Errorf("retrieval instruction %d: %w", i, err))
			return
		}
		queries[i] = insts
	}

	root, err := h.loadTree(ctx, req.Source)
	if err != nil {
		h.fail(c, err)
		return
	}

	data := make([]map[string]any, 0)
	for i, insts := range queries {
		results, err := h.engine.Execute(ctx, root, insts)
		if err != nil {
			h.fail(c, fmt.Errorf("retrieval instruction %d: %w", i, err))
			return
		}
		out := req.RetrievalInstructions[i].Output
		for _, row := range output.Rows(results) {
			data = append(data, renameKey(row, out.Location, out.Key))
		}
	}

	c.JSON(http.StatusOK, ScrapedDataset{URL: req.URL, Data: data})
}

// Query compiles and executes a Goatspeak program
func (h *Handlers) Query(c *gin.Context) {
	var req QueryRequest
	if !h.bind(c, &req) {
		return
	}

	format := output.FormatJSON
	if req.Format != "" {
		f, err := output.NormalizeFormat(req.Format)
		if err != nil {
			h.fail(c, err)
			return
		}
		format = f
	}

	insts, err := h.compile(req.Query)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	root, err := h.loadTree(ctx, req.Source)
	if err != nil {
		h.fail(c, err)
		return
	}

	results, err := h.engine.Execute(ctx, root, insts)
	if err != nil {
		h.fail(c, err)
		return
	}
	rows := output.Rows(results)

	if req.Format == "" {
		c.JSON(http.StatusOK, QueryResponse{Count: len(rows), Results: rows})
		return
	}

	var buf bytes.Buffer
	if err := output.Encode(&buf, format, rows, output.Indent(req.Indent)); err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, output.ContentType(format), buf.Bytes())
}

// Compile returns the instruction maps of a Goatspeak program
func (h *Handlers) Compile(c *gin.Context) {
	var req CompileRequest
	if !h.bind(c, &req) {
		return
	}

	insts, err := h.engine.Compile(req.Query)
	if err != nil {
		h.fail(c, err)
		return
	}

	maps := make([]map[string]any, len(insts))
	for i, inst := range insts {
		maps[i] = inst.Map()
	}
	c.JSON(http.StatusOK, CompileResponse{Instructions: maps})
}

// validator is implemented by request bodies with checks beyond binding tags.
type validator interface {
	validate() error
}

func (h *Handlers) bind(c *gin.Context, req validator) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %w", errRequestFormat, err))
		return false
	}
	return true
}

// compile rejects OUTPUT statements; the service never writes files.
func (h *Handlers) compile(query string) ([]goatspeak.Instruction, error) {
	insts, err := h.engine.Compile(query)
	if err != nil {
		return nil, err
	}
	for _, inst := range insts {
		if out, ok := inst.(*goatspeak.Output); ok {
			return nil, fmt.Errorf("%w (OUTPUT %s at %s)", errOutputStmt, out.FileType, out.Pos)
		}
	}
	return insts, nil
}

func (h *Handlers) loadTree(ctx context.Context, src Source) (*tree.Node, error) {
	hasURL, hasHTML := src.URL != "", src.HTML != ""
	if hasURL == hasHTML {
		return nil, errSource
	}

	doc := []byte(src.HTML)
	if hasURL {
		body, err := h.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			if errors.Is(err, fetch.ErrInvalidURL) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", errUpstream, err)
		}
		doc = body
	}

	gardener := h.gardener
	if src.Scope != "" {
		gardener = gardener.Scoped(src.Scope)
	}
	if src.Sanitize {
		gardener = gardener.Sanitized()
	}
	return gardener.Grow(ctx, doc)
}

// retrievalQuery appends the extraction implied by inst to its node query.
func retrievalQuery(inst RetrievalInstruction) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(inst.NodeQuery))
	if !strings.HasSuffix(sb.String(), ";") {
		sb.WriteString(";")
	}
	sb.WriteString(" EXTRACT ")
	sb.WriteString(inst.Output.Location)
	for _, flag := range []string{goatspeak.FlagNoChildren, goatspeak.FlagNoGrandchildren} {
		if on, _ := inst.Flags[flag].(bool); on {
			sb.WriteString(" --" + flag)
		}
	}
	sb.WriteString(";")
	return sb.String()
}

func renameKey(row map[string]any, from, to string) map[string]any {
	if from == to {
		return row
	}
	if v, ok := row[from]; ok {
		delete(row, from)
		row[to] = v
	}
	return row
}
