package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
	"github.com/scrapegoat/backend/internal/shared/id"
	"github.com/scrapegoat/backend/internal/tree"
)

const (
	// DefaultMaxBytes limits HTML input to 10MB to prevent memory exhaustion
	DefaultMaxBytes = 10 * 1024 * 1024

	// RootTag is the tag of the synthetic node wrapping a whole document.
	RootTag = "document"
)

var (
	ErrEmptyDocument = errors.New("builder: html content required")
	ErrTooLarge      = errors.New("builder: document exceeds maximum size")
	ErrScopeNotFound = errors.New("builder: scope selector matched nothing")
)

// Gardener grows document trees from raw HTML.
type Gardener struct {
	ids      tree.IDSource
	maxBytes int64
	scope    string
	policy   *bluemonday.Policy
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Option configures a Gardener.
type Option func(*Gardener)

// WithIDSource sets where node IDs come from. The default is a ULID
// generator owned by the Gardener.
func WithIDSource(ids tree.IDSource) Option {
	return func(g *Gardener) {
		if ids != nil {
			g.ids = ids
		}
	}
}

// WithMaxBytes limits the accepted document size.
func WithMaxBytes(n int64) Option {
	return func(g *Gardener) {
		if n > 0 {
			g.maxBytes = n
		}
	}
}

// WithScope roots grown trees at the first element matching a CSS selector.
func WithScope(selector string) Option {
	return func(g *Gardener) { g.scope = strings.TrimSpace(selector) }
}

// WithSanitizer runs documents through p before parsing. Scripts, styles,
// event handlers and markup p does not allow never reach the tree.
func WithSanitizer(p *bluemonday.Policy) Option {
	return func(g *Gardener) { g.policy = p }
}

// SanitizePolicy is the policy used by Sanitized: user-generated-content
// rules that also keep id and class, so selections can still match them.
func SanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id", "class").Globally()
	return p
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gardener) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics records tree building metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(g *Gardener) { g.metrics = m }
}

// New creates a Gardener.
func New(opts ...Option) *Gardener {
	g := &Gardener{
		ids:      id.NewGenerator(),
		maxBytes: DefaultMaxBytes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Scoped returns a copy of g rooted at selector. An empty selector returns g.
func (g *Gardener) Scoped(selector string) *Gardener {
	if strings.TrimSpace(selector) == "" {
		return g
	}
	cp := *g
	cp.scope = strings.TrimSpace(selector)
	return &cp
}

// Sanitized returns a copy of g that sanitizes documents with
// SanitizePolicy. A Gardener that already sanitizes is returned as is.
func (g *Gardener) Sanitized() *Gardener {
	if g.policy != nil {
		return g
	}
	cp := *g
	cp.policy = SanitizePolicy()
	return &cp
}

// Grow parses source and converts it into a tree.
func (g *Gardener) Grow(ctx context.Context, source []byte) (*tree.Node, error) {
	root, err := g.grow(ctx, source)
	if g.metrics != nil {
		g.metrics.RecordTree(monitoring.Status(err), countNodes(root))
	}
	return root, err
}

// GrowFromReader reads at most the size limit from r and grows a tree.
func (g *Gardener) GrowFromReader(ctx context.Context, r io.Reader) (*tree.Node, error) {
	data, err := io.ReadAll(io.LimitReader(r, g.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("builder: read document: %w", err)
	}
	return g.Grow(ctx, data)
}

func (g *Gardener) grow(ctx context.Context, source []byte) (*tree.Node, error) {
	if err := g.validate(source); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := g.decode(source)
	if g.policy != nil {
		r = g.policy.SanitizeReader(r)
	}
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("builder: parse html: %w", err)
	}

	top := doc
	if g.scope != "" {
		sel := goquery.NewDocumentFromNode(doc).Find(g.scope).First()
		if sel.Length() == 0 {
			return nil, fmt.Errorf("%w: %q", ErrScopeNotFound, g.scope)
		}
		top = sel.Get(0)
	}

	root := g.convert(top)
	g.logger.Debug("Grew document tree",
		zap.Int("bytes", len(source)),
		zap.String("scope", g.scope),
		zap.Bool("sanitized", g.policy != nil),
		zap.Int("nodes", countNodes(root)))
	return root, nil
}

func (g *Gardener) validate(source []byte) error {
	if len(bytes.TrimSpace(source)) == 0 {
		return ErrEmptyDocument
	}
	if int64(len(source)) > g.maxBytes {
		return fmt.Errorf("%w of %d bytes", ErrTooLarge, g.maxBytes)
	}
	return nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode returns a UTF-8 reader over source. A BOM or meta declaration wins;
// otherwise valid UTF-8 is taken as is and anything else is sniffed with
// chardet.
func (g *Gardener) decode(source []byte) io.Reader {
	enc, name, certain := charset.DetermineEncoding(source, "")
	// windows-1252 without certainty is DetermineEncoding's fallback
	if !certain && name == "windows-1252" {
		if utf8.Valid(source) {
			return bytes.NewReader(source)
		}
		if e, canonical := charset.Lookup(DetectCharset(source)); e != nil {
			enc, name = e, canonical
		}
	}
	if name == "utf-8" {
		return bytes.NewReader(bytes.TrimPrefix(source, utf8BOM))
	}
	g.logger.Debug("Decoding document", zap.String("charset", name))
	return enc.NewDecoder().Reader(bytes.NewReader(source))
}

// DetectCharset guesses the charset of data, defaulting to utf-8.
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// convert maps an html node and its element descendants onto tree nodes.
func (g *Gardener) convert(n *html.Node) *tree.Node {
	var out *tree.Node
	if n.Type == html.DocumentNode {
		out = tree.NewNode(g.ids, RootTag, nil, directText(n))
	} else {
		out = tree.NewNode(g.ids, n.Data, attributes(n), directText(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out.AppendChild(g.convert(c))
		}
	}
	return out
}

func attributes(n *html.Node) map[string]string {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		attrs[tree.AttrKey(key)] = a.Val
	}
	return attrs
}

// directText joins the trimmed text children of n with single spaces.
func directText(n *html.Node) string {
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		if t := strings.TrimSpace(c.Data); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func countNodes(root *tree.Node) int {
	count := 0
	for range root.Preorder() {
		count++
	}
	return count
}
