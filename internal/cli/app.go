package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/scrapegoat/backend/internal/builder"
	"github.com/scrapegoat/backend/internal/fetch"
	"github.com/scrapegoat/backend/internal/infrastructure/config"
	"github.com/scrapegoat/backend/internal/infrastructure/logging"
	"github.com/scrapegoat/backend/internal/tree"
)

var (
	errSourceFlags = errors.New("at most one of --file, --url and --glob may be set")
	errNoMatches   = errors.New("glob matched no files")
)

// App holds what every subcommand needs. It is populated by the root
// command's PersistentPreRunE.
type App struct {
	Config *config.Config
	Logger *logging.Logger

	logLevel string
	dev      bool
}

// sourceFlags selects the document(s) a command reads.
type sourceFlags struct {
	file     string
	url      string
	glob     string
	scope    string
	sanitize bool
}

func (f *sourceFlags) register(cmd *cobra.Command, withGlob bool) {
	cmd.Flags().StringVar(&f.file, "file", "", "Read the document from a file")
	cmd.Flags().StringVar(&f.url, "url", "", "Fetch the document from a URL")
	if withGlob {
		cmd.Flags().StringVar(&f.glob, "glob", "", `Run over every file matching a pattern (e.g. "pages/**/*.html")`)
	}
	cmd.Flags().StringVar(&f.scope, "scope", "", "Root the tree at the first element matching a CSS selector")
	cmd.Flags().BoolVar(&f.sanitize, "sanitize", false, "Strip scripts, styles and event handlers before building the tree")
}

func (f *sourceFlags) validate() error {
	set := 0
	for _, v := range []string{f.file, f.url, f.glob} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return errSourceFlags
	}
	return nil
}

// document is one tree plus where it came from.
type document struct {
	source string
	root   *tree.Node
}

func (a *App) gardener() (*builder.Gardener, error) {
	ids, err := builder.NewIDSource(a.Config.Builder.IDScheme)
	if err != nil {
		return nil, err
	}
	opts := []builder.Option{
		builder.WithIDSource(ids),
		builder.WithMaxBytes(a.Config.Builder.MaxDocumentBytes),
		builder.WithLogger(a.Logger.Component("builder")),
	}
	if a.Config.Builder.SanitizeHTML {
		opts = append(opts, builder.WithSanitizer(builder.SanitizePolicy()))
	}
	return builder.New(opts...), nil
}

func (a *App) fetcher() *fetch.Sheepdog {
	return fetch.New(fetch.Options{
		Timeout:           a.Config.Fetch.Timeout,
		Retries:           a.Config.Fetch.Retries,
		UserAgent:         a.Config.Fetch.UserAgent,
		RequestsPerSecond: a.Config.Fetch.RequestsPerSecond,
		MaxBytes:          a.Config.Builder.MaxDocumentBytes,
		Logger:            a.Logger.Component("fetch"),
	})
}

// load builds the trees named by f. Without a source flag the document is
// read from stdin.
func (a *App) load(ctx context.Context, f sourceFlags, stdin io.Reader) ([]document, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	g, err := a.gardener()
	if err != nil {
		return nil, err
	}
	g = g.Scoped(f.scope)
	if f.sanitize {
		g = g.Sanitized()
	}

	switch {
	case f.url != "":
		body, err := a.fetcher().Fetch(ctx, f.url)
		if err != nil {
			return nil, err
		}
		root, err := g.Grow(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.url, err)
		}
		return []document{{source: f.url, root: root}}, nil

	case f.glob != "":
		paths, err := doublestar.FilepathGlob(f.glob, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", f.glob, err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("%w: %q", errNoMatches, f.glob)
		}
		sort.Strings(paths)

		docs := make([]document, 0, len(paths))
		for _, path := range paths {
			root, err := growFile(ctx, g, path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, document{source: path, root: root})
		}
		return docs, nil

	case f.file != "":
		root, err := growFile(ctx, g, f.file)
		if err != nil {
			return nil, err
		}
		return []document{{source: f.file, root: root}}, nil

	default:
		root, err := g.GrowFromReader(ctx, stdin)
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return []document{{source: "-", root: root}}, nil
	}
}

func growFile(ctx context.Context, g *builder.Gardener, path string) (*tree.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root, err := g.GrowFromReader(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}
