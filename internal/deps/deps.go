// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package deps orders the installation of a grammar and the grammars it
// depends on.
//
// A language moves Pending → Installing → Installed. The whole recipe graph
// below a language is walked and checked for cycles before anything is
// installed, so a cyclic definition never leaves a partial install behind.
// Recipes of installed languages are checked too, although nothing below
// them is installed.
package deps

import (
	"context"
	"slices"
	"strings"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/logging"
	"github.com/goplus/tsgrammar/internal/recipe"
)

// State is the install state of a language within one install.
type State int

const (
	Pending State = iota
	Installing
	Installed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	}
	return "unknown"
}

// InstallStack holds the languages whose installation is in progress, the
// outermost first.
type InstallStack struct {
	ids []string
}

// Push enters id. It fails with CyclicDependency if id is already on the
// stack; the error names the chain closing the cycle.
func (s *InstallStack) Push(id string) error {
	if i := slices.Index(s.ids, id); i >= 0 {
		chain := append(slices.Clone(s.ids[i:]), id)
		e := grammarerr.New(grammarerr.CyclicDependency, "%s", strings.Join(chain, " -> "))
		e.Chain = chain
		return e
	}
	s.ids = append(s.ids, id)
	return nil
}

// Pop leaves the innermost language.
func (s *InstallStack) Pop() {
	s.ids = s.ids[:len(s.ids)-1]
}

// Lookup returns the recipe of a language.
type Lookup func(lang string) (recipe.Recipe, error)

// InstalledFunc reports whether a language is installed already.
type InstalledFunc func(lang string) bool

// InstallFunc installs a single language whose dependencies are installed.
type InstallFunc func(ctx context.Context, r recipe.Recipe) error

// Resolver walks recipe dependencies.
type Resolver struct {
	lookup    Lookup
	installed InstalledFunc
}

// New creates a Resolver.
func New(lookup Lookup, installed InstalledFunc) *Resolver {
	return &Resolver{lookup: lookup, installed: installed}
}

// Plan is the outcome of walking the graph below one language.
type Plan struct {
	Target string
	// Steps lists the recipes to install, dependencies before dependents.
	// Installed languages are absent.
	Steps []recipe.Recipe

	states  map[string]State
	planned map[string]bool // walked in full, no cycle below
	checked map[string]bool // checked for cycles below an installed language
}

// State returns the state of lang in the plan. Languages the walk never
// reached are Pending.
func (p *Plan) State(lang string) State {
	return p.states[lang]
}

// Langs returns the language ids of Steps.
func (p *Plan) Langs() []string {
	ids := make([]string, len(p.Steps))
	for i, r := range p.Steps {
		ids[i] = r.Lang()
	}
	return ids
}

// Order walks the graph below lang and returns its install plan without
// installing anything.
func (r *Resolver) Order(lang string) (*Plan, error) {
	p := &Plan{
		Target:  lang,
		states:  make(map[string]State),
		planned: make(map[string]bool),
		checked: make(map[string]bool),
	}
	var stack InstallStack
	if err := r.walk(p, &stack, lang); err != nil {
		return nil, grammarerr.WithLang(lang, err)
	}
	return p, nil
}

// walk appends the recipes below lang, then lang, to p.Steps. The stack
// holds the path from the target to lang.
func (r *Resolver) walk(p *Plan, stack *InstallStack, lang string) error {
	if err := stack.Push(lang); err != nil {
		return err
	}
	defer stack.Pop()

	if p.planned[lang] {
		return nil
	}
	if r.installed(lang) {
		p.states[lang] = Installed
		if err := r.check(p, stack, lang); err != nil {
			return err
		}
		p.planned[lang] = true
		return nil
	}
	rec, err := r.lookup(lang)
	if err != nil {
		return err
	}
	for _, dep := range rec.Deps() {
		if err := r.walk(p, stack, dep); err != nil {
			return err
		}
	}
	p.Steps = append(p.Steps, rec)
	p.planned[lang] = true
	return nil
}

// check walks the dependencies of the installed language lang, already on
// the stack, for cycles only. Languages without a recipe end the walk.
func (r *Resolver) check(p *Plan, stack *InstallStack, lang string) error {
	rec, err := r.lookup(lang)
	if err != nil {
		return nil
	}
	for _, dep := range rec.Deps() {
		if err := stack.Push(dep); err != nil {
			return err
		}
		if !p.planned[dep] && !p.checked[dep] {
			if err := r.check(p, stack, dep); err != nil {
				stack.Pop()
				return err
			}
			p.checked[dep] = true
		}
		stack.Pop()
	}
	return nil
}

// Install brings lang and everything it depends on to Installed. Every
// dependency is installed before its dependents; already installed
// languages cost nothing.
func (r *Resolver) Install(ctx context.Context, lang string, install InstallFunc) (*Plan, error) {
	p, err := r.Order(lang)
	if err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx)
	if len(p.Steps) == 0 {
		logger.Debug("already installed", "lang", lang)
		return p, nil
	}
	logger.Debug("install order", "lang", lang, "order", strings.Join(p.Langs(), ","))

	for _, rec := range p.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.states[rec.Lang()] = Installing
		if err := install(ctx, rec); err != nil {
			return nil, grammarerr.WithLang(rec.Lang(), err)
		}
		p.states[rec.Lang()] = Installed
	}
	return p, nil
}
