package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gzhole/yaraforge/internal/config"
	"github.com/gzhole/yaraforge/internal/registry"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in classifiers, analysers and processors",
	Long: `List every registered capability. When the configuration can be loaded,
classifiers show whether their tag is enabled and analysers/processors show
the tags that allow them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", yellow("warning:"), err)
			cfg = nil
		}
		printCapabilities(cmd.OutOrStdout(), registry.Builtin(), cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func printCapabilities(w io.Writer, table *registry.Table, cfg *config.Config) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintln(w, bold("Classifiers"))
	for _, e := range table.Classifiers {
		status := gray("not configured")
		if cfg != nil {
			if tc, ok := cfg.Tags[e.Name]; ok {
				status = gray("disabled")
				if tc.Enabled {
					status = green("enabled")
				}
			}
		}
		fmt.Fprintf(w, "  %-8s %-16s %s\n", e.Name, status, e.Description)
	}

	fmt.Fprintln(w, bold("Analysers"))
	for _, e := range table.Analysers {
		fmt.Fprintf(w, "  %-8s %-16s %s\n", e.Name, allowedBy(cfg, e.Name, func(tc config.TagConfig) []string { return tc.Analysers }), e.Description)
	}

	fmt.Fprintln(w, bold("Processors"))
	for _, e := range table.Processors {
		fmt.Fprintf(w, "  %-8s %-16s %s\n", e.Name, allowedBy(cfg, e.Name, func(tc config.TagConfig) []string { return tc.Processors }), e.Description)
	}

	if cfg != nil && len(cfg.Fragments) > 0 {
		fmt.Fprintln(w, bold("Fragments"))
		for _, f := range cfg.Fragments {
			state := green("on")
			if !f.Enabled {
				state = gray("off")
			}
			fmt.Fprintf(w, "  %-16s %-4s tags: %s\n", f.Name, state, strings.Join(f.Tags, ", "))
		}
	}
}

func allowedBy(cfg *config.Config, name string, list func(config.TagConfig) []string) string {
	if cfg == nil {
		return "-"
	}
	var tags []string
	for _, tag := range cfg.EnabledTags() {
		for _, n := range list(cfg.Tags[tag]) {
			if strings.EqualFold(n, name) {
				tags = append(tags, tag)
				break
			}
		}
	}
	if len(tags) == 0 {
		return "-"
	}
	return strings.Join(tags, ",")
}
