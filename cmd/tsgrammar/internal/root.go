package internal

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/goplus/tsgrammar/internal/logging"
)

var (
	verbose    bool
	configPath string
	ceiling    int
)

var rootCmd = &cobra.Command{
	Use:   "tsgrammar",
	Short: "tsgrammar installs tree-sitter grammars compatible with the host editor",
	Long: `tsgrammar finds the newest revision of each grammar whose ABI the host
editor accepts, builds it with the local (or a substituted) C toolchain and
registers the resulting library together with its dependencies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := log.InfoLevel
		if verbose {
			level = log.DebugLevel
		}
		cmd.SetContext(logging.WithLogger(cmd.Context(), logging.New(os.Stderr, level)))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default $XDG_CONFIG_HOME/tsgrammar/config.toml)")
	rootCmd.PersistentFlags().IntVar(&ceiling, "ceiling", 0, "Highest ABI the host accepts, overriding the configuration")
}

// Execute runs the command line. It is called by main.main().
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
