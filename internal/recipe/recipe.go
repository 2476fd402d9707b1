// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package recipe describes how to obtain one grammar and what was resolved for it.
package recipe

import (
	"io"
	"path"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// Auto is the revision spec that searches history for a compatible commit.
const Auto = "auto"

// DefaultSourceDir is the directory, relative to the grammar root, holding parser.c.
const DefaultSourceDir = "src"

// Recipe describes how to obtain and build one grammar module.
// A Recipe is a value; accessors never expose internal slices.
type Recipe struct {
	lang      string
	url       string
	revision  string
	branch    string
	subpath   string
	sourceDir string
	deps      []string
}

// Options holds the optional parts of a Recipe.
type Options struct {
	// Revision is a commit (or any ref) to pin, or Auto. Empty means Auto.
	Revision string
	// Branch is the ref searched in auto mode. Empty means the remote HEAD.
	Branch string
	// Subpath locates the grammar inside a monorepo.
	Subpath string
	// SourceDir is the directory holding parser.c, relative to Subpath.
	SourceDir string
	// Deps are language ids that must be installed first.
	Deps []string
}

// New creates a recipe for lang fetched from url.
func New(lang, url string, opts Options) Recipe {
	rev := opts.Revision
	if rev == "" {
		rev = Auto
	}
	srcDir := opts.SourceDir
	if srcDir == "" {
		srcDir = DefaultSourceDir
	}
	return Recipe{
		lang:      lang,
		url:       url,
		revision:  rev,
		branch:    opts.Branch,
		subpath:   path.Clean("/" + opts.Subpath)[1:],
		sourceDir: srcDir,
		deps:      slices.Clone(opts.Deps),
	}
}

// Lang returns the language id.
func (r Recipe) Lang() string { return r.lang }

// URL returns the source repository locator.
func (r Recipe) URL() string { return r.url }

// Revision returns the pinned revision, or Auto.
func (r Recipe) Revision() string { return r.revision }

// Fixed reports whether the recipe pins a revision.
func (r Recipe) Fixed() bool { return r.revision != Auto }

// Branch returns the ref searched in auto mode, empty for the remote HEAD.
func (r Recipe) Branch() string { return r.branch }

// Subpath returns the grammar root inside the repository, "" for the repository root.
func (r Recipe) Subpath() string { return r.subpath }

// SourceDir returns the grammar's source directory relative to the repository root.
func (r Recipe) SourceDir() string { return path.Join(r.subpath, r.sourceDir) }

// ParserPath returns the repository path of the file declaring the ABI.
func (r Recipe) ParserPath() string { return path.Join(r.SourceDir(), "parser.c") }

// Deps returns the language ids this recipe depends on.
func (r Recipe) Deps() []string { return slices.Clone(r.deps) }

// Pin returns a copy of r fixed at rev.
func (r Recipe) Pin(rev string) Recipe {
	r.revision = rev
	r.deps = slices.Clone(r.deps)
	return r
}

// Resolved is a commit chosen for a language, with the ABI it declares.
type Resolved struct {
	Lang   string
	Commit string
	ABI    int
}

// Set is a collection of recipes keyed by language id.
type Set map[string]Recipe

// NewSet indexes recipes by language id. Later duplicates win.
func NewSet(recipes ...Recipe) Set {
	s := make(Set, len(recipes))
	for _, r := range recipes {
		s[r.lang] = r
	}
	return s
}

// Lookup returns the recipe for lang.
func (s Set) Lookup(lang string) (Recipe, bool) {
	r, ok := s[lang]
	return r, ok
}

// Get is like Lookup but fails with UnknownRecipe.
func (s Set) Get(lang string) (Recipe, error) {
	r, ok := s[lang]
	if !ok {
		return Recipe{}, grammarerr.New(grammarerr.UnknownRecipe, "no recipe for %q", lang)
	}
	return r, nil
}

// File is the on-disk form of recipes, shared by configuration and export.
type File struct {
	Recipes []Entry `toml:"recipe"`
}

// Entry is one [[recipe]] table.
type Entry struct {
	Lang      string   `toml:"lang"`
	URL       string   `toml:"url"`
	Revision  string   `toml:"revision,omitempty"`
	Branch    string   `toml:"branch,omitempty"`
	Subpath   string   `toml:"subpath,omitempty"`
	SourceDir string   `toml:"source_dir,omitempty"`
	Deps      []string `toml:"deps,omitempty"`
	ABI       int      `toml:"abi,omitempty"`
}

// Recipe converts e into a Recipe.
func (e Entry) Recipe() Recipe {
	return New(e.Lang, e.URL, Options{
		Revision:  e.Revision,
		Branch:    e.Branch,
		Subpath:   e.Subpath,
		SourceDir: e.SourceDir,
		Deps:      e.Deps,
	})
}

// EntryOf converts r into its on-disk form.
func EntryOf(r Recipe) Entry {
	e := Entry{
		Lang:    r.lang,
		URL:     r.url,
		Branch:  r.branch,
		Subpath: r.subpath,
		Deps:    r.Deps(),
	}
	if r.Fixed() {
		e.Revision = r.revision
	}
	if r.sourceDir != DefaultSourceDir {
		e.SourceDir = r.sourceDir
	}
	return e
}

// Export writes recipes pinned at their resolved commits, so later installs
// reproduce them without searching. Recipes without a resolution are skipped.
func Export(w io.Writer, recipes Set, resolved []Resolved) error {
	resolved = slices.Clone(resolved)
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Lang < resolved[j].Lang })

	var f File
	for _, res := range resolved {
		r, ok := recipes.Lookup(res.Lang)
		if !ok {
			continue
		}
		e := EntryOf(r.Pin(res.Commit))
		e.ABI = res.ABI
		f.Recipes = append(f.Recipes, e)
	}
	return toml.NewEncoder(w).Encode(f)
}
