// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package install makes grammars available: it resolves, builds and
// registers a language and everything it depends on.
package install

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goplus/tsgrammar/internal/build"
	"github.com/goplus/tsgrammar/internal/deps"
	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/recipe"
	"github.com/goplus/tsgrammar/internal/revision"
	"github.com/goplus/tsgrammar/internal/vcs"
)

// Syncer materializes commit of a recipe's repository into dir.
type Syncer func(ctx context.Context, r recipe.Recipe, commit, dir string) error

// SyncRemote checks out recipes with vcs.Sync.
func SyncRemote(opts ...vcs.GitOption) Syncer {
	return func(ctx context.Context, r recipe.Recipe, commit, dir string) error {
		return vcs.Sync(ctx, r.URL(), commit, r.Subpath(), dir, opts...)
	}
}

// Result is the outcome of Ensure.
type Result struct {
	Lang string
	Path string // registered library
	// Resolved is the revision built for Lang, nil when Lang was installed
	// already.
	Resolved *recipe.Resolved
	// Built lists every language built, dependencies first.
	Built []string
}

// Installer installs grammars.
type Installer struct {
	recipes  recipe.Set
	resolver *revision.Resolver
	builder  *build.Builder
	registry *build.Registry
	sync     Syncer
	srcDir   string
}

// Options configures an Installer.
type Options struct {
	Recipes  recipe.Set
	Resolver *revision.Resolver
	Builder  *build.Builder
	Registry *build.Registry
	// Sync defaults to SyncRemote().
	Sync Syncer
	// SourceDir holds one checkout per language.
	SourceDir string
}

// New creates an Installer.
func New(opts Options) *Installer {
	sync := opts.Sync
	if sync == nil {
		sync = SyncRemote()
	}
	return &Installer{
		recipes:  opts.Recipes,
		resolver: opts.Resolver,
		builder:  opts.Builder,
		registry: opts.Registry,
		sync:     sync,
		srcDir:   opts.SourceDir,
	}
}

// Ensure makes lang available and returns where its library is registered.
// Its dependencies are installed first. Nothing is fetched or built for
// languages that are installed already.
func (in *Installer) Ensure(ctx context.Context, lang string) (Result, error) {
	built := make(map[string]recipe.Resolved)
	d := deps.New(in.recipes.Get, in.installed)
	plan, err := d.Install(ctx, lang, func(ctx context.Context, rec recipe.Recipe) error {
		rev, err := in.installOne(ctx, rec)
		if err != nil {
			return err
		}
		if rev != nil {
			built[rec.Lang()] = *rev
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	path, err := in.registry.Installed(lang)
	if err != nil {
		return Result{}, grammarerr.WithLang(lang, err)
	}
	res := Result{Lang: lang, Path: path, Built: plan.Langs()}
	if rev, ok := built[lang]; ok {
		res.Resolved = &rev
	}
	return res, nil
}

// Plan returns the languages Ensure would build for lang, dependencies
// first, without building anything.
func (in *Installer) Plan(lang string) ([]string, error) {
	p, err := deps.New(in.recipes.Get, in.installed).Order(lang)
	if err != nil {
		return nil, err
	}
	return p.Langs(), nil
}

// Resolved returns every revision resolved by this Installer.
func (in *Installer) Resolved() []recipe.Resolved {
	return in.resolver.Resolved()
}

// Registered returns the revisions of every registered grammar whose build
// is recorded.
func (in *Installer) Registered() ([]recipe.Resolved, error) {
	return in.registry.Entries()
}

// Recorded returns the revision the registered library of lang was built
// from, when it is known.
func (in *Installer) Recorded(lang string) (recipe.Resolved, bool) {
	return in.registry.Recorded(lang)
}

func (in *Installer) installed(lang string) bool {
	_, err := in.registry.Installed(lang)
	return err == nil
}

// installOne builds and registers rec. It returns the revision built, or
// nil if rec was registered by someone else in the meantime.
func (in *Installer) installOne(ctx context.Context, rec recipe.Recipe) (*recipe.Resolved, error) {
	var built *recipe.Resolved
	_, err := in.registry.Produce(ctx, rec.Lang(), func(ctx context.Context) (string, recipe.Resolved, error) {
		rev, err := in.resolver.Resolve(ctx, rec)
		if err != nil {
			return "", recipe.Resolved{}, err
		}
		dir := filepath.Join(in.srcDir, rec.Lang())
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", recipe.Resolved{}, err
		}
		if err := in.sync(ctx, rec, rev.Commit, dir); err != nil {
			return "", recipe.Resolved{}, grammarerr.WithLang(rec.Lang(), err)
		}
		lib, err := in.builder.Build(ctx, build.Source{
			Lang: rec.Lang(),
			Dir:  filepath.Join(dir, filepath.FromSlash(rec.SourceDir())),
		})
		if err != nil {
			return "", recipe.Resolved{}, err
		}
		built = &rev
		return lib, rev, nil
	})
	if err != nil {
		return nil, err
	}
	return built, nil
}
