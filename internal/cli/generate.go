package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gzhole/yaraforge/internal/config"
	"github.com/gzhole/yaraforge/internal/logger"
	"github.com/gzhole/yaraforge/internal/metrics"
	"github.com/gzhole/yaraforge/internal/pipeline"
	"github.com/gzhole/yaraforge/internal/registry"
	"github.com/gzhole/yaraforge/internal/sample"
	"github.com/spf13/cobra"
)

var (
	genOutDir      string
	genAggregate   bool
	genExcludes    []string
	genTimeout     time.Duration
	genMetricsFile string
	genReportPath  string
	genCache       bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <file|dir>",
	Short: "Generate YARA rules from a sample or a directory of samples",
	Long: `Classify every sample, analyse each class and write one rule per class.

A directory is walked recursively. Rules are written as <TAG>.yar in the
output directory, or concatenated into aggregate.yar with --aggr.

Examples:
  yaraforge generate samples/                      # One rule per detected format
  yaraforge generate samples/ --aggr --out rules/  # Single aggregate.yar
  yaraforge generate samples/ --exclude '**/benign/**'
  yaraforge generate samples/ --report run.jsonl  # Keep a run report
  yaraforge generate dropper.exe --log-level debug`,
	Aliases: []string{"gen"},
	Args:    cobra.ExactArgs(1),
	RunE:    generateCommand,
}

func init() {
	generateCmd.Flags().StringVarP(&genOutDir, "out", "o", "", "Output directory (default: output.dir from config)")
	generateCmd.Flags().BoolVar(&genAggregate, "aggr", false, "Write all rules into a single aggregate.yar")
	generateCmd.Flags().StringSliceVar(&genExcludes, "exclude", nil, "Glob of paths to skip while walking a directory (repeatable)")
	generateCmd.Flags().DurationVar(&genTimeout, "timeout", 0, "Per-invocation timeout (default: pipeline.task_timeout from config)")
	generateCmd.Flags().StringVar(&genMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	generateCmd.Flags().StringVar(&genReportPath, "report", "", "Append the run report to this JSONL file")
	generateCmd.Flags().BoolVar(&genCache, "cache", false, "Keep sample content in memory for the whole run")
	rootCmd.AddCommand(generateCmd)
}

func generateCommand(cmd *cobra.Command, args []string) error {
	log, closer, err := logger.Setup(cmd.ErrOrStderr(), logLevel, logFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(log)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyGenerateFlags(cmd, cfg)

	files, err := sample.Collect(args[0], genExcludes)
	if err != nil {
		return err
	}
	log.Info("collected samples", "count", len(files), "input", args[0])

	set, err := registry.Builtin().Discover(cfg, log)
	if err != nil {
		return err
	}

	var report *logger.Report
	if genReportPath != "" {
		report, err = logger.NewReport(genReportPath)
		if err != nil {
			return fmt.Errorf("failed to open run report: %w", err)
		}
		defer report.Close()
	}

	m := metrics.New()
	var sink pipeline.Sink = pipeline.DirSink{Dir: cfg.Output.Dir}
	if cfg.Output.Aggregate {
		sink = &pipeline.AggregateSink{Dir: cfg.Output.Dir}
	}

	sched := pipeline.NewScheduler(cfg, set, sink,
		pipeline.WithLogger(log),
		pipeline.WithReport(report),
		pipeline.WithMetrics(m),
	)
	for _, f := range files {
		sched.AddTask(sample.NewTask(f, cfg.Pipeline.CacheContent))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := sched.Run(ctx)
	if summary != nil {
		printRunSummary(cmd.OutOrStdout(), summary)
	}

	if genMetricsFile != "" {
		if err := m.WriteTextfile(genMetricsFile); err != nil {
			log.Warn("failed to write metrics", "path", genMetricsFile, "error", err)
		}
	}
	return runErr
}

// applyGenerateFlags lets explicitly set flags override the configuration.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.Config) {
	if genOutDir != "" {
		cfg.Output.Dir = genOutDir
	}
	if genAggregate {
		cfg.Output.Aggregate = true
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Pipeline.TaskTimeout = &genTimeout
	}
	if genCache {
		cfg.Pipeline.CacheContent = true
	}
}

func printRunSummary(w io.Writer, summary *pipeline.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s %d sample(s), %d tag(s)\n", cyan("yaraforge:"), summary.Tasks, len(summary.Tags))
	if len(summary.Tags) == 0 {
		fmt.Fprintln(w, yellow("  no sample matched an enabled classifier"))
		return
	}
	for _, t := range summary.Tags {
		if t.Rule != nil {
			fmt.Fprintf(w, "  %s %-8s %d file(s), %d string(s) -> %s\n",
				green("✓"), t.Tag, t.Files, len(t.Rule.Strings), t.Path)
			continue
		}
		fmt.Fprintf(w, "  %s %-8s %d file(s), no rule: %v\n", yellow("-"), t.Tag, t.Files, t.Err)
	}
}
