package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goplus/tsgrammar/internal/logging"
)

var installDryRun bool

var installCmd = &cobra.Command{
	Use:   "install [lang[@revision]...]",
	Short: "Install grammars and their dependencies",
	Long: `Install resolves each grammar to the newest revision compatible with the
ABI ceiling, builds it and registers the library. Dependencies are installed
first. Without arguments every configured grammar is installed.`,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVarP(&installDryRun, "dry-run", "n", false, "Print what would be built without building")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	langs, err := parseLangArgs(args)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, langs)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)
	out := cmd.OutOrStdout()

	for _, lang := range a.targets(langs) {
		if installDryRun {
			plan, err := a.installer.Plan(lang)
			if err != nil {
				return err
			}
			if len(plan) == 0 {
				fmt.Fprintf(out, "%s: already installed\n", lang)
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", lang, strings.Join(plan, " "))
			continue
		}

		res, err := a.installer.Ensure(ctx, lang)
		if err != nil {
			return err
		}
		if res.Resolved == nil {
			logger.Debug("already installed", "lang", lang, "path", res.Path)
			if rev, ok := a.installer.Recorded(lang); ok {
				fmt.Fprintf(out, "%s: already installed at %s (%s, abi %d)\n", lang, res.Path, rev.Commit, rev.ABI)
				continue
			}
			fmt.Fprintf(out, "%s: already installed at %s\n", lang, res.Path)
			continue
		}
		fmt.Fprintf(out, "%s: %s (abi %d) -> %s\n", lang, res.Resolved.Commit, res.Resolved.ABI, res.Path)
	}
	return nil
}
