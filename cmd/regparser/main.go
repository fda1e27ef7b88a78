package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coolbeans/regparser/pkg/citation"
	"github.com/coolbeans/regparser/pkg/compiler"
	"github.com/coolbeans/regparser/pkg/config"
	"github.com/coolbeans/regparser/pkg/diff"
	"github.com/coolbeans/regparser/pkg/layer"
	"github.com/coolbeans/regparser/pkg/logging"
	"github.com/coolbeans/regparser/pkg/metrics"
	"github.com/coolbeans/regparser/pkg/notice"
	"github.com/coolbeans/regparser/pkg/tree"
	"github.com/coolbeans/regparser/pkg/watch"
	"github.com/coolbeans/regparser/pkg/xmltree"
)

var version = "0.1.0"

// app holds what every command shares once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logJSON    bool
	metricsOut string

	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	state := &app{}
	rootCmd := &cobra.Command{
		Use:   "regparser",
		Short: "Federal regulation parser and notice compiler",
		Long: `regparser turns CFR regulation XML into labelled document trees,
applies the amendments of Federal Register notices to produce new
versions, and reports what changed between versions.

It produces:
  - Regulation trees as JSON
  - Change records from notice amendment instructions
  - Compiled regulation versions
  - Structural and textual diffs between versions
  - Citation and defined-term layers`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return state.finish()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&state.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&state.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&state.logJSON, "log-json", false, "write logs as JSON")
	flags.StringVar(&state.metricsOut, "metrics-out", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(treeCmd(state))
	rootCmd.AddCommand(noticeCmd(state))
	rootCmd.AddCommand(compileCmd(state))
	rootCmd.AddCommand(diffCmd(state))
	rootCmd.AddCommand(citationsCmd(state))
	rootCmd.AddCommand(layerCmd(state))
	rootCmd.AddCommand(watchCmd(state))
	return rootCmd
}

func (state *app) setup() error {
	state.config = config.Default()
	if state.configPath != "" {
		loaded, err := config.Load(state.configPath)
		if err != nil {
			return err
		}
		state.config = loaded
	}

	levelName := state.config.Logging.Level
	if state.logLevel != "" {
		levelName = state.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	state.logger = logging.New(logging.Config{
		Level:   level,
		JSON:    state.logJSON || state.config.Logging.JSON,
		Service: "regparser",
	})
	state.metrics = metrics.New()
	return nil
}

func (state *app) finish() error {
	if state.metricsOut == "" {
		return nil
	}
	file, err := os.Create(state.metricsOut)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer file.Close()
	return state.metrics.WriteText(file)
}

func (state *app) builder() (*xmltree.Builder, error) {
	preprocessors, err := xmltree.LookupPreprocessors(state.config.Preprocessors)
	if err != nil {
		return nil, err
	}
	return xmltree.NewBuilder(state.logger, preprocessors...), nil
}

func (state *app) parser() (*notice.Parser, error) {
	builder, err := state.builder()
	if err != nil {
		return nil, err
	}
	return notice.NewParser(builder, state.logger), nil
}

func (state *app) compileOptions() compiler.Options {
	return compiler.Options{
		Logger:      state.logger,
		Metrics:     state.metrics,
		LabelDepths: state.config.Compiler.LabelDepths,
	}
}

func treeCmd(state *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "tree <regulation.xml>",
		Short: "Build a regulation tree from XML",
		Long: `Build the labelled document tree of a regulation from annual-edition
or notice XML and print it as JSON.

Example:
  regparser tree 12cfr1005.xml --output 1005.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, err := state.builder()
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer file.Close()

			document, err := xmltree.ReadDocument(file)
			if err != nil {
				return err
			}
			root, err := builder.Build(document)
			if err != nil {
				return err
			}
			return writeJSON(cmd, output, root)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func noticeCmd(state *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "notice <notice.xml>",
		Short: "Extract change records from a notice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := state.parseNotice(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, output, parsed)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (state *app) parseNotice(path string) (*notice.Notice, error) {
	parser, err := state.parser()
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return parser.ParseReader(file)
}

func compileCmd(state *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile <tree.json> <notice.xml>",
		Short: "Apply a notice to a regulation tree",
		Long: `Apply the amendments of a notice to a regulation tree and print the
resulting version.

Example:
  regparser compile 1005.json 2024-01234.xml -o 1005-next.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			previous, err := readTree(args[0])
			if err != nil {
				return err
			}
			parsed, err := state.parseNotice(args[1])
			if err != nil {
				return err
			}
			result := compiler.Compile(previous, parsed.Changes, state.compileOptions())
			if result.Forced > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d conflicting changes were forced (run %s)\n", result.Forced, result.RunID)
			}
			return writeJSON(cmd, output, result.Tree)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func diffCmd(state *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "diff <old.json> <new.json>",
		Short: "Report changes between two regulation trees",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lhs, err := readTree(args[0])
			if err != nil {
				return err
			}
			rhs, err := readTree(args[1])
			if err != nil {
				return err
			}
			interner := tree.NewInterner()
			changes := diff.ChangesBetween(interner.Freeze(lhs), interner.Freeze(rhs))
			state.metrics.SetInternedNodes(interner.Size())
			state.logger.Info("diff computed", "changes", len(changes))
			return writeJSON(cmd, output, changes)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

type citationOutput struct {
	Start    int           `json:"start"`
	End      int           `json:"end"`
	Label    string        `json:"label"`
	Citation []string      `json:"citation"`
	Kind     citation.Kind `json:"kind"`
	InClause bool          `json:"in_clause,omitempty"`
}

func citationsCmd(state *app) *cobra.Command {
	var (
		part    string
		section string
		cfr     bool
		output  string
	)
	cmd := &cobra.Command{
		Use:   "citations [text]",
		Short: "Extract citations from text",
		Long: `Extract the regulation citations in text, resolved relative to the
given part and section. Text is read from stdin when not given.

Example:
  regparser citations --part 1005 --section 2 "See paragraph (b)(1) and (2)"
  regparser citations --cfr "under 12 CFR 1026.5(a)"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := argumentOrStdin(cmd, args)
			if err != nil {
				return err
			}
			extractor := citation.NewExtractor(citation.WithLogger(state.logger), citation.WithMetrics(state.metrics))

			var found []citation.ParagraphCitation
			if cfr {
				found = extractor.CFRCitations(text, true)
			} else {
				initial := citation.NewLabel(citation.Fields{"part": part, "section": section})
				found = extractor.InternalCitations(text, initial, citation.Options{
					RequireMarker: state.config.Citations.RequireMarker,
					Title:         state.config.Title(),
				})
			}
			citation.SortByStart(found)

			results := make([]citationOutput, 0, len(found))
			for _, cited := range found {
				results = append(results, citationOutput{
					Start:    cited.Start,
					End:      cited.End,
					Label:    cited.Label.String(),
					Citation: cited.Label.ToList(!cfr),
					Kind:     cited.Kind,
					InClause: cited.InClause,
				})
			}
			return writeJSON(cmd, output, results)
		},
	}
	cmd.Flags().StringVar(&part, "part", "", "part the text belongs to")
	cmd.Flags().StringVar(&section, "section", "", "section the text belongs to")
	cmd.Flags().BoolVar(&cfr, "cfr", false, "extract title-qualified CFR citations only")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func layerCmd(state *app) *cobra.Command {
	var (
		kind   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "layer <tree.json>",
		Short: "Compute an annotation layer for a regulation tree",
		Long: `Compute an annotation layer keyed by node label.

Layers:
  citations  internal citations with character offsets
  terms      defined terms and their uses`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := readTree(args[0])
			if err != nil {
				return err
			}
			switch kind {
			case "citations":
				citations, err := layer.InternalCitationLayer(runContext(cmd), root, layer.CitationOptions{
					Logger:        state.logger,
					Metrics:       state.metrics,
					Verify:        state.config.Citations.Verify,
					RequireMarker: state.config.Citations.RequireMarker,
					Title:         state.config.Title(),
					Workers:       state.config.Layers.Workers,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd, output, citations)
			case "terms":
				return writeJSON(cmd, output, layer.TermsLayer(root, layer.TermsOptions{
					Logger:  state.logger,
					Include: state.config.Terms.Include,
					Exclude: state.config.Terms.Exclude,
				}))
			}
			return fmt.Errorf("unknown layer %q (want citations or terms)", kind)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "citations", "layer to compute: citations or terms")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

type watchOutput struct {
	Path    string       `json:"path"`
	Notice  string       `json:"document_number,omitempty"`
	RunID   string       `json:"run_id,omitempty"`
	Forced  int          `json:"forced"`
	Changes diff.Changes `json:"changes,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func watchCmd(state *app) *cobra.Command {
	var scanFirst bool
	cmd := &cobra.Command{
		Use:   "watch <tree.json> <notice-dir>",
		Short: "Recompile notices as they appear in a directory",
		Long: `Watch a directory of notice XML files and compile each new or changed
notice against the base tree, printing one JSON line per notice with its
diff. When --config is given, the file is reloaded on change.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := readTree(args[0])
			if err != nil {
				return err
			}
			parser, err := state.parser()
			if err != nil {
				return err
			}
			watcher := watch.New(args[1], base, watch.Options{
				Logger:      state.logger,
				Metrics:     state.metrics,
				Parser:      parser,
				LabelDepths: state.config.Compiler.LabelDepths,
			})

			if state.configPath != "" {
				configWatcher, err := config.NewWatcher(state.configPath, state.logger)
				if err != nil {
					return err
				}
				configWatcher.Subscribe(func(updated *config.Config) {
					watcher.SetLabelDepths(updated.Compiler.LabelDepths)
				})
				if err := configWatcher.Watch(); err != nil {
					return err
				}
				defer configWatcher.Stop()
			}

			ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			encoder := json.NewEncoder(cmd.OutOrStdout())
			emit := func(update watch.Update) {
				line := watchOutput{Path: update.Path}
				if update.Err != nil {
					line.Error = update.Err.Error()
				} else {
					line.Notice = update.Notice.DocumentNumber
					line.RunID = update.Result.RunID
					line.Forced = update.Result.Forced
					line.Changes = update.Changes
				}
				if err := encoder.Encode(line); err != nil {
					state.logger.Warn("failed to write update", "error", err)
				}
			}

			if scanFirst {
				updates, err := watcher.ScanOnce(ctx)
				if err != nil {
					return err
				}
				for _, update := range updates {
					emit(update)
				}
			}
			return watcher.Run(ctx, emit)
		},
	}
	cmd.Flags().BoolVar(&scanFirst, "scan", true, "compile notices already in the directory before watching")
	return cmd
}

func readTree(path string) (*tree.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	root := &tree.Node{}
	if err := json.Unmarshal(data, root); err != nil {
		return nil, fmt.Errorf("failed to decode tree %s: %w", path, err)
	}
	return root, nil
}

func argumentOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeJSON(cmd *cobra.Command, output string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	data = append(data, '\n')
	if output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	return nil
}

// runContext is the command context, or Background when cobra has none.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
