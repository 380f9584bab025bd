package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/scrapegoat/backend/internal/engine"
	"github.com/scrapegoat/backend/internal/goatspeak"
	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
)

// Output statement flags.
const (
	FlagFilename = "filename"
	FlagFilepath = "filepath"
	FlagGzip     = "gzip"
	FlagIndent   = "indent"

	DefaultFilename = "results"
	DefaultDir      = "./outputs"
)

// Milkman writes result sets to files as directed by OUTPUT statements.
type Milkman struct {
	dir     string
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

var _ engine.Deliverer = (*Milkman)(nil)

// Option configures a Milkman.
type Option func(*Milkman)

// WithDir sets the directory used when an OUTPUT statement has no
// --filepath flag.
func WithDir(dir string) Option {
	return func(m *Milkman) {
		if dir != "" {
			m.dir = dir
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Milkman) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records delivery metrics.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Milkman) { m.metrics = metrics }
}

// New creates a Milkman.
func New(opts ...Option) *Milkman {
	m := &Milkman{dir: DefaultDir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rows returns the annotated projections of results ordered by node ID.
func Rows(results *engine.ResultSet) []map[string]any {
	nodes := results.SortedNodes()
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, n.ProjectAnnotated())
	}
	return rows
}

// Target describes where and how an OUTPUT statement writes.
type Target struct {
	Format string
	Path   string
	Gzip   bool
	Indent bool
}

// Resolve validates out and works out its target file.
func (m *Milkman) Resolve(out *goatspeak.Output) (Target, error) {
	format, err := NormalizeFormat(out.FileType)
	if err != nil {
		return Target{}, err
	}
	gz, err := boolFlag(out, FlagGzip)
	if err != nil {
		return Target{}, err
	}
	indent, err := boolFlag(out, FlagIndent)
	if err != nil {
		return Target{}, err
	}

	name := out.Flag(FlagFilename, DefaultFilename)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return Target{}, fmt.Errorf("output: invalid filename %q", name)
	}
	name = strings.TrimSuffix(name, "."+format) + "." + format
	if gz {
		name += ".gz"
	}

	for flag := range out.Flags {
		switch flag {
		case FlagFilename, FlagFilepath, FlagGzip, FlagIndent:
		default:
			m.logger.Debug("Ignoring unknown output flag", zap.String("flag", flag))
		}
	}

	return Target{
		Format: format,
		Path:   filepath.Join(out.Flag(FlagFilepath, m.dir), name),
		Gzip:   gz,
		Indent: indent,
	}, nil
}

// Deliver encodes results and writes them to the file named by out. The
// file is written under a temporary name and renamed into place.
func (m *Milkman) Deliver(ctx context.Context, results *engine.ResultSet, out *goatspeak.Output) error {
	_, err := m.DeliverRows(ctx, Rows(results), out)
	return err
}

// DeliverRows writes already projected rows, such as results gathered from
// several documents, and returns where they went.
func (m *Milkman) DeliverRows(ctx context.Context, rows []map[string]any, out *goatspeak.Output) (Target, error) {
	target, err := m.Resolve(out)
	if err == nil {
		err = m.write(ctx, target, rows)
	}
	if m.metrics != nil {
		m.metrics.RecordDelivery(strings.ToLower(out.FileType), monitoring.Status(err))
	}
	if err != nil {
		return Target{}, err
	}

	m.logger.Info("Delivered results",
		zap.String("path", target.Path),
		zap.String("format", target.Format),
		zap.Int("rows", len(rows)))
	return target, nil
}

func (m *Milkman) write(ctx context.Context, target Target, rows []map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(target.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".goat-*")
	if err != nil {
		return fmt.Errorf("output: create file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := encodeTo(tmp, target, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: close file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("output: chmod file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target.Path); err != nil {
		return fmt.Errorf("output: rename file: %w", err)
	}
	return nil
}

func encodeTo(w io.Writer, target Target, rows []map[string]any) error {
	if !target.Gzip {
		return Encode(w, target.Format, rows, Indent(target.Indent))
	}
	zw := gzip.NewWriter(w)
	if err := Encode(zw, target.Format, rows, Indent(target.Indent)); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func boolFlag(out *goatspeak.Output, name string) (bool, error) {
	v, ok := out.Flags[name]
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("output: flag --%s: %q is not a boolean", name, v)
	}
	return b, nil
}
