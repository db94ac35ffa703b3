package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/gzhole/yaraforge/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter configuration and scoring table",
	Long: `Write main.yaml and string_scores.tsv into dir (default: conf).

Tags are only activated when they appear in main.yaml with enabled: true.
Drop extra *.yaml files into <dir>/conf.d to add or override tags; prefix a
file name with "_" to disable it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := config.DefaultConfigDir
		if len(args) == 1 {
			dir = args[0]
		}
		written, err := config.WriteDefaults(dir, initForce)
		if err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		for _, p := range written {
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", green("✓"), p)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
