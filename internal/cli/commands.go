package cli

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/scrapegoat/backend/internal/engine"
	"github.com/scrapegoat/backend/internal/goatspeak"
	"github.com/scrapegoat/backend/internal/infrastructure/config"
	"github.com/scrapegoat/backend/internal/infrastructure/logging"
	"github.com/scrapegoat/backend/internal/output"
	"github.com/scrapegoat/backend/internal/tree"
)

// SourceKey is added to every row when a query runs over several files.
const SourceKey = "source"

// NewRootCommand returns the goat command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	app := &App{}

	root := &cobra.Command{
		Use:           "goat",
		Short:         "Query HTML documents with Goatspeak",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logCfg := logging.Config{Level: app.logLevel, Development: app.dev, Output: "stderr"}
			logger, err := logging.New(logCfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			app.Config, app.Logger = cfg, logger
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app.Logger != nil {
				return app.Logger.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "warn", `Log level: "debug", "info", "warn" or "error"`)
	root.PersistentFlags().BoolVar(&app.dev, "dev", false, "Console log encoding")

	root.AddCommand(QueryCommand(app), CompileCommand(app), TreeCommand(app))
	return root
}

// QueryCommand creates the "query" subcommand. Results go to stdout in
// --format unless the program has an OUTPUT statement, which writes a file
// instead.
func QueryCommand(app *App) *cobra.Command {
	var (
		src    sourceFlags
		format string
		indent bool
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "query <goatspeak>",
		Short: "Run a Goatspeak program against one or more documents",
		Example: `  goat query 'SCRAPE a; EXTRACT @href, body;' --file page.html
  goat query 'SCRAPE h1; EXTRACT body; OUTPUT csv --filename titles;' --glob 'site/**/*.html'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdoutFormat, err := output.NormalizeFormat(format)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = app.Config.Output.Dir
			}
			milkman := output.New(output.WithDir(outDir), output.WithLogger(app.Logger.Component("output")))
			eng := engine.New(engine.WithLogger(app.Logger.Component("engine")))

			insts, err := eng.Compile(args[0])
			if err != nil {
				return err
			}
			selection, out := splitOutput(insts)

			ctx := cmd.Context()
			docs, err := app.load(ctx, src, cmd.InOrStdin())
			if err != nil {
				return err
			}

			rows := make([]map[string]any, 0)
			for _, doc := range docs {
				results, err := eng.Execute(ctx, doc.root, selection)
				if err != nil {
					return fmt.Errorf("%s: %w", doc.source, err)
				}
				for _, row := range output.Rows(results) {
					if len(docs) > 1 {
						row[SourceKey] = doc.source
					}
					rows = append(rows, row)
				}
			}

			if out == nil {
				return output.Encode(cmd.OutOrStdout(), stdoutFormat, rows, output.Indent(indent))
			}
			target, err := milkman.DeliverRows(ctx, rows, out)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(rows), target.Path)
			return err
		},
	}

	src.register(cmd, true)
	cmd.Flags().StringVar(&format, "format", output.FormatJSON, "Stdout format: json, csv, yaml or toml")
	cmd.Flags().BoolVar(&indent, "indent", false, "Indent JSON output")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Default directory for OUTPUT files (OUTPUT_DIR)")
	return cmd
}

// CompileCommand creates the "compile" subcommand, which prints the compiled
// instructions as JSON, or the lexed tokens with --tokens.
func CompileCommand(app *App) *cobra.Command {
	var tokens bool

	cmd := &cobra.Command{
		Use:   "compile <goatspeak>",
		Short: "Compile a Goatspeak program and print its instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokens {
				toks, err := goatspeak.Lex(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), goatspeak.Describe(toks))
				return err
			}

			insts, err := engine.New(engine.WithLogger(app.Logger.Component("engine"))).Compile(args[0])
			if err != nil {
				return err
			}
			maps := make([]map[string]any, len(insts))
			for i, inst := range insts {
				maps[i] = inst.Map()
			}
			data, err := sonic.ConfigStd.MarshalIndent(maps, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().BoolVar(&tokens, "tokens", false, "Print the lexed tokens instead of the instructions")
	return cmd
}

// TreeCommand creates the "tree" subcommand, which prints the indented HTML
// rendering of a document tree, or its full projection with --json.
func TreeCommand(app *App) *cobra.Command {
	var (
		src    sourceFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the document tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := app.load(cmd.Context(), src, cmd.InOrStdin())
			if err != nil {
				return err
			}
			root := docs[0].root

			if !asJSON {
				_, err = fmt.Fprint(cmd.OutOrStdout(), root.HTML())
				return err
			}
			data, err := sonic.ConfigStd.MarshalIndent(root.Project(nil, tree.ExtractFlags{}), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	src.register(cmd, false)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full projection as JSON")
	return cmd
}

// splitOutput removes OUTPUT statements and returns the first of them.
func splitOutput(insts []goatspeak.Instruction) ([]goatspeak.Instruction, *goatspeak.Output) {
	var first *goatspeak.Output
	rest := make([]goatspeak.Instruction, 0, len(insts))
	for _, inst := range insts {
		if out, ok := inst.(*goatspeak.Output); ok {
			if first == nil {
				first = out
			}
			continue
		}
		rest = append(rest, inst)
	}
	return rest, first
}
