package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gzhole/yaraforge/internal/logger"
	"github.com/spf13/cobra"
)

var (
	reportPath      string
	reportFilterTag string
	reportRun       string
	reportFailed    bool
	reportLast      int
	reportSummary   bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "View and filter the run report",
	Long: `View the per-tag events recorded by generate --report.

Examples:
  yaraforge report                       # Show all entries
  yaraforge report --last 20             # Show last 20 entries
  yaraforge report --tag PE              # Show only PE entries
  yaraforge report --failed              # Show tags that produced no rule
  yaraforge report --summary             # Show summary stats`,
	Args: cobra.NoArgs,
	RunE: reportCommand,
}

func init() {
	reportCmd.Flags().StringVar(&reportPath, "file", "yaraforge.jsonl", "Run report to read")
	reportCmd.Flags().StringVar(&reportFilterTag, "tag", "", "Filter by tag")
	reportCmd.Flags().StringVar(&reportRun, "run", "", "Filter by run id (prefix match)")
	reportCmd.Flags().BoolVar(&reportFailed, "failed", false, "Show only tags without a rule")
	reportCmd.Flags().IntVar(&reportLast, "last", 0, "Show last N entries")
	reportCmd.Flags().BoolVar(&reportSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(reportCmd)
}

func reportCommand(cmd *cobra.Command, args []string) error {
	events, err := logger.ReadReport(reportPath)
	if err != nil {
		return fmt.Errorf("failed to read run report: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No run report entries found.")
		return nil
	}

	filtered := filterEvents(events, reportFilterTag, reportRun, reportFailed)

	if reportLast > 0 && reportLast < len(filtered) {
		filtered = filtered[len(filtered)-reportLast:]
	}

	if reportSummary {
		printSummary(out, events)
		return nil
	}

	printEvents(out, filtered)
	return nil
}

func filterEvents(events []logger.Event, tag, run string, failed bool) []logger.Event {
	if tag == "" && run == "" && !failed {
		return events
	}

	var filtered []logger.Event
	for _, e := range events {
		if tag != "" && !strings.EqualFold(e.Tag, tag) {
			continue
		}
		if run != "" && !strings.HasPrefix(e.RunID, run) {
			continue
		}
		if failed && e.Written() {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(w io.Writer, events []logger.Event) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	for _, e := range events {
		icon := green("✓")
		if !e.Written() {
			icon = yellow("-")
		}
		fmt.Fprintf(w, "%s %s %s %s\n", icon, formatTimestamp(e.Timestamp), e.Tag, gray(shortRunID(e.RunID)))
		fmt.Fprintf(w, "     Files: %d  Conditions: %d  Strings: %d  (%dms)\n", e.Files, e.Conditions, e.Strings, e.DurationMS)
		if len(e.Analysers) > 0 {
			fmt.Fprintf(w, "     Analysers: %s\n", strings.Join(e.Analysers, ", "))
		}
		if len(e.Processors) > 0 {
			fmt.Fprintf(w, "     Processors: %s\n", strings.Join(e.Processors, ", "))
		}
		if e.RulePath != "" {
			fmt.Fprintf(w, "     Rule: %s\n", e.RulePath)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", e.Error)
		}
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, all []logger.Event) {
	runs := map[string]bool{}
	perTag := map[string]int{}
	var tags []string
	written := 0

	for _, e := range all {
		runs[e.RunID] = true
		if _, ok := perTag[e.Tag]; !ok {
			tags = append(tags, e.Tag)
			perTag[e.Tag] = 0
		}
		if e.Written() {
			written++
			perTag[e.Tag]++
		}
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  yaraforge Run Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Runs:            %d\n", len(runs))
	fmt.Fprintf(w, "  Tag events:      %d\n", len(all))
	fmt.Fprintf(w, "  Rules written:   %d\n", written)
	fmt.Fprintf(w, "  Without rule:    %d\n", len(all)-written)
	fmt.Fprintln(w, "═══════════════════════════════════════════")

	fmt.Fprintf(w, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
	fmt.Fprintf(w, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Rules per tag:")
	for _, tag := range tags {
		fmt.Fprintf(w, "    %-10s %d\n", tag, perTag[tag])
	}
	fmt.Fprintln(w)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
