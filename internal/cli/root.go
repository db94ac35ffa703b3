package cli

import (
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/gzhole/yaraforge/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath string
	logLevel   string
	logFile    string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "yaraforge",
	Short: "yaraforge - YARA rule synthesis from malware samples",
	Long: `yaraforge classifies a set of binary samples by file format, extracts
features from every sample of a class, keeps the features shared by all of
them and writes one YARA rule per class.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", filepath.Join(config.DefaultConfigDir, config.DefaultMainFile), "Path to main configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Console log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write debug-level logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
}

func Execute() error {
	return rootCmd.Execute()
}
