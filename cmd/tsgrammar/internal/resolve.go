package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [lang[@revision]...]",
	Short: "Print the newest compatible revision of grammars",
	Long: `Resolve searches each grammar's history for the newest commit whose parser
declares an ABI within the ceiling. Nothing is built.`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	langs, err := parseLangArgs(args)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, langs)
	if err != nil {
		return err
	}
	for _, lang := range a.targets(langs) {
		r, err := a.recipes.Get(lang)
		if err != nil {
			return err
		}
		res, err := a.resolver.Resolve(cmd.Context(), r)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", res.Lang, res.Commit, res.ABI)
	}
	return nil
}
