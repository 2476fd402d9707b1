package internal

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/goplus/tsgrammar/internal/recipe"
)

var (
	exportOutput    string
	exportInstalled bool
)

var exportCmd = &cobra.Command{
	Use:   "export [lang...]",
	Short: "Write recipes pinned at their compatible revisions",
	Long: `Export resolves the named grammars (every configured grammar by default)
and writes their recipes pinned at the chosen commits, in the configuration
file format. With --installed the revisions of registered grammars are used
instead and nothing is resolved.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportInstalled, "installed", false, "Export registered grammars")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	langs, err := parseLangArgs(args)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, langs)
	if err != nil {
		return err
	}

	var resolved []recipe.Resolved
	if exportInstalled {
		if resolved, err = a.installer.Registered(); err != nil {
			return err
		}
	} else {
		for _, lang := range a.targets(langs) {
			r, err := a.recipes.Get(lang)
			if err != nil {
				return err
			}
			res, err := a.resolver.Resolve(cmd.Context(), r)
			if err != nil {
				return err
			}
			resolved = append(resolved, res)
		}
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return recipe.Export(w, a.recipes, resolved)
}
