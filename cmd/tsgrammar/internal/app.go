package internal

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/goplus/tsgrammar/internal/build"
	"github.com/goplus/tsgrammar/internal/config"
	"github.com/goplus/tsgrammar/internal/env"
	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/install"
	"github.com/goplus/tsgrammar/internal/logging"
	"github.com/goplus/tsgrammar/internal/recipe"
	"github.com/goplus/tsgrammar/internal/revision"
	"github.com/goplus/tsgrammar/internal/toolchain"
	"github.com/goplus/tsgrammar/internal/vcs"
)

// app wires the configuration into an Installer.
type app struct {
	cfg       *config.Config
	recipes   recipe.Set
	resolver  *revision.Resolver
	installer *install.Installer
}

// langArg is a command line "lang[@revision]" argument.
type langArg struct {
	lang string
	rev  string
}

// parseLangArg parses an argument in the form "lang@revision" or "lang".
func parseLangArg(arg string) (lang, rev string) {
	for i := len(arg) - 1; i >= 0; i-- {
		if arg[i] == '@' {
			return arg[:i], arg[i+1:]
		}
	}
	return arg, ""
}

func parseLangArgs(args []string) ([]langArg, error) {
	out := make([]langArg, len(args))
	for i, arg := range args {
		lang, rev := parseLangArg(arg)
		if lang == "" {
			return nil, fmt.Errorf("invalid argument %q: missing language", arg)
		}
		out[i] = langArg{lang: lang, rev: rev}
	}
	return out, nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	path, err := env.ConfigFile()
	if err != nil {
		return nil, err
	}
	return config.LoadOptional(path)
}

// pinRecipes fixes the recipes named with an explicit revision.
func pinRecipes(set recipe.Set, args []langArg) (recipe.Set, error) {
	pinned := make(recipe.Set, len(set))
	for lang, r := range set {
		pinned[lang] = r
	}
	for _, a := range args {
		if a.rev == "" {
			continue
		}
		r, err := set.Get(a.lang)
		if err != nil {
			return nil, err
		}
		pinned[a.lang] = r.Pin(a.rev)
	}
	return pinned, nil
}

func newApp(cmd *cobra.Command, args []langArg) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("ceiling") {
		if ceiling <= 0 {
			return nil, grammarerr.New(grammarerr.InvalidConfig, "invalid ceiling %d", ceiling)
		}
		cfg.Ceiling = ceiling
	}
	abiCeiling, err := cfg.ABICeiling()
	if err != nil {
		return nil, err
	}
	recipes, err := pinRecipes(cfg.RecipeSet(), args)
	if err != nil {
		return nil, err
	}
	tools, err := cfg.Tools()
	if err != nil {
		return nil, err
	}
	if sub, ok := tools.(*toolchain.Substitute); ok {
		logging.FromContext(cmd.Context()).Debug("substituted tools", "tools", strings.Join(sub.Names(), ","))
	}

	buildDir, err := env.BuildDir()
	if err != nil {
		return nil, err
	}
	artifactDir, err := env.ArtifactDir()
	if err != nil {
		return nil, err
	}

	resolver := revision.New(revision.OpenRemote(vcs.Options{}), abiCeiling, cfg.Bounds())
	inst := install.New(install.Options{
		Recipes:   recipes,
		Resolver:  resolver,
		Builder:   build.NewBuilder(tools, build.Options{WorkDir: filepath.Join(buildDir, "obj")}),
		Registry:  build.NewRegistry(afero.NewOsFs(), artifactDir, filepath.Join(buildDir, "locks")),
		SourceDir: filepath.Join(buildDir, "src"),
	})
	return &app{cfg: cfg, recipes: recipes, resolver: resolver, installer: inst}, nil
}

// targets returns the languages named by args, or every configured
// language when args is empty.
func (a *app) targets(args []langArg) []string {
	if len(args) == 0 {
		return a.cfg.Langs()
	}
	langs := make([]string, len(args))
	for i, arg := range args {
		langs[i] = arg.lang
	}
	return langs
}
