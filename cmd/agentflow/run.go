package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hupe1980/agentflow/config"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/runner"
	"github.com/hupe1980/agentflow/trace"
)

var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Run the configured pipeline",
	Long:  `Builds the pipeline from the configuration file and runs it once with the given user input.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var input string
		if len(args) > 0 {
			input = args[0]
		}

		flags := runFlags{}
		flags.sets, _ = cmd.Flags().GetStringArray("set")
		flags.traceFormat, _ = cmd.Flags().GetString("trace")
		flags.raw, _ = cmd.Flags().GetBool("raw")
		flags.timeout, _ = cmd.Flags().GetDuration("timeout")
		flags.progress, _ = cmd.Flags().GetBool("progress")

		return runPipeline(cmd.Context(), cfg, input, flags, cmd.OutOrStdout())
	},
}

type runFlags struct {
	sets        []string
	traceFormat string
	raw         bool
	timeout     time.Duration
	progress    bool
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArray("set", nil, "Seed session state, key=value (repeatable)")
	runCmd.Flags().String("trace", "", "Print the execution trace after the run: text or json")
	runCmd.Flags().Bool("raw", false, "Print the output without markdown rendering")
	runCmd.Flags().Duration("timeout", 0, "Cancel the run after this duration")
	runCmd.Flags().Bool("progress", false, "Report node completions and loop iterations on stderr")
}

func runPipeline(ctx context.Context, cfg *config.Config, input string, flags runFlags, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	initial, err := parseSets(flags.sets)
	if err != nil {
		return err
	}

	logger := cfg.Logger(os.Stderr)

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}

	root, err := config.Build(cfg.Pipeline, deps)
	if err != nil {
		return err
	}

	obs, err := setupObservability(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Close(shutdownCtx); err != nil {
			logger.Warn("observability.close.error", "error", err)
		}
	}()

	tracer := obs.tracer
	if flags.progress {
		tracer = trace.Multi(tracer, progressRouter(os.Stderr))
	}

	r := runner.New(root, func(o *runner.Options) {
		o.Retry = cfg.RetryPolicy()
		o.Tracer = tracer
		o.Logger = logger
		o.Debug = cfg.Runner.Debug || flags.traceFormat != ""
		o.OutputKey = cfg.Runner.OutputKey
		o.InitialState = initial
		o.MaxModelCalls = cfg.Runner.MaxModelCalls
		o.MaxConcurrentRuns = cfg.Runner.MaxConcurrentRuns
	})

	res, runErr := r.Run(ctx, input)

	if res != nil && flags.traceFormat != "" {
		if err := printTrace(out, flags.traceFormat, res.Trace); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}

	return printOutput(out, res.Output, flags.raw)
}

func parseSets(sets []string) (map[string]any, error) {
	initial := make(map[string]any, len(sets))
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", s)
		}
		initial[k] = v
	}
	return initial, nil
}

func printTrace(out io.Writer, format string, events []core.Event) error {
	switch format {
	case "json":
		return trace.WriteJSON(out, events)
	case "text":
		return trace.WriteText(out, events)
	default:
		return fmt.Errorf("unknown trace format %q", format)
	}
}

func printOutput(out io.Writer, output any, raw bool) error {
	text := fmt.Sprint(output)
	if output == nil {
		text = ""
	}

	if !raw && isTerminal(out) {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			if rendered, err := r.Render(text); err == nil {
				text = rendered
			}
		}
	}

	_, err := fmt.Fprintln(out, strings.TrimRight(text, "\n"))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func progressRouter(w io.Writer) *trace.Router {
	var mu sync.Mutex

	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format, args...)
	}

	return trace.NewRouter().
		On(func(ev core.Event) {
			printf("  %s %s (%s)\n", ev.Status, ev.Path, ev.Duration.Round(time.Millisecond))
		}, core.EventNodeExit).
		On(func(ev core.Event) {
			printf("loop %s iteration %d\n", ev.Node, ev.Iteration)
		}, core.EventLoopIteration).
		On(func(ev core.Event) {
			printf("  retry %s attempt %d: %s\n", ev.Path, ev.Attempt, ev.Error)
		}, core.EventRetry)
}
