package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scrapegoat/backend/internal/goatspeak"
	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
	"github.com/scrapegoat/backend/internal/tree"
)

// ErrNoDeliverer is returned when a query contains an OUTPUT statement but
// the engine has no Deliverer.
var ErrNoDeliverer = errors.New("engine: output instruction without a deliverer")

// Deliverer hands a result set to its destination as described by an
// OUTPUT statement.
type Deliverer interface {
	Deliver(ctx context.Context, results *ResultSet, out *goatspeak.Output) error
}

// Engine compiles and executes Goatspeak queries. It holds no per-query
// state and is safe for concurrent use on distinct trees.
type Engine struct {
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	deliverer Deliverer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records compile and execute metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDeliverer sets the collaborator that handles OUTPUT statements.
func WithDeliverer(d Deliverer) Option {
	return func(e *Engine) { e.deliverer = d }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile turns query text into instructions.
func (e *Engine) Compile(query string) ([]goatspeak.Instruction, error) {
	timer := monitoring.NewTimer()
	insts, err := goatspeak.Compile(query)
	if e.metrics != nil {
		e.metrics.RecordCompile(monitoring.Status(err), timer.Elapsed())
	}
	if err != nil {
		e.logger.Debug("Compile failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	e.logger.Debug("Compiled query",
		zap.String("query", query),
		zap.Int("instructions", len(insts)),
		zap.Duration("duration", timer.Elapsed()))
	return insts, nil
}

// Run compiles query and executes it against root.
func (e *Engine) Run(ctx context.Context, root *tree.Node, query string) (*ResultSet, error) {
	insts, err := e.Compile(query)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, root, insts)
}

// Execute runs instructions against root. Selections accumulate into one
// result set, the first Extraction annotates every member, and the first
// Output is handed to the Deliverer. Later Extraction and Output statements
// are ignored.
func (e *Engine) Execute(ctx context.Context, root *tree.Node, insts []goatspeak.Instruction) (*ResultSet, error) {
	timer := monitoring.NewTimer()
	results, err := e.execute(ctx, root, insts)
	if e.metrics != nil {
		e.metrics.RecordExecution(monitoring.Status(err), timer.Elapsed(), results.Len())
	}
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Executed instructions",
		zap.Int("instructions", len(insts)),
		zap.Int("results", results.Len()),
		zap.Duration("duration", timer.Elapsed()))
	return results, nil
}

func (e *Engine) execute(ctx context.Context, root *tree.Node, insts []goatspeak.Instruction) (*ResultSet, error) {
	var (
		selections  []*goatspeak.Selection
		extractions []*goatspeak.Extraction
		outputs     []*goatspeak.Output
	)
	for _, inst := range insts {
		switch v := inst.(type) {
		case *goatspeak.Selection:
			selections = append(selections, v)
		case *goatspeak.Extraction:
			extractions = append(extractions, v)
		case *goatspeak.Output:
			outputs = append(outputs, v)
		default:
			return nil, fmt.Errorf("engine: unsupported instruction %T", inst)
		}
	}

	if len(outputs) > 0 && e.deliverer == nil {
		return nil, ErrNoDeliverer
	}

	results := newResultSet()
	for i, sel := range selections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.selectInto(results, root, sel); err != nil {
			return nil, fmt.Errorf("selection %d: %w", i+1, err)
		}
	}

	if len(extractions) > 0 {
		ext := extractions[0]
		for _, n := range results.order {
			n.Annotate(ext.Fields, ext.Flags)
		}
		if skipped := len(extractions) - 1; skipped > 0 {
			e.logger.Debug("Ignoring extra extraction statements", zap.Int("skipped", skipped))
		}
	}

	if len(outputs) > 0 {
		if skipped := len(outputs) - 1; skipped > 0 {
			e.logger.Debug("Ignoring extra output statements", zap.Int("skipped", skipped))
		}
		if err := e.deliverer.Deliver(ctx, results, outputs[0]); err != nil {
			return nil, fmt.Errorf("deliver %s: %w", outputs[0].FileType, err)
		}
	}

	return results, nil
}

// selectInto adds the nodes of root matching sel, stopping once sel.Limit
// matches have been found.
func (e *Engine) selectInto(results *ResultSet, root *tree.Node, sel *goatspeak.Selection) error {
	found := 0
	for n := range root.Preorder() {
		ok, err := sel.Matches(n, root)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		results.add(n)
		found++
		if sel.Limit > 0 && found >= sel.Limit {
			break
		}
	}
	return nil
}
