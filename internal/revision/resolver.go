// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package revision chooses the commit of a grammar to build: the newest one
// whose declared ABI the host accepts, or a pinned one checked against the
// ceiling.
package revision

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/goplus/tsgrammar/internal/abi"
	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/logging"
	"github.com/goplus/tsgrammar/internal/recipe"
	"github.com/goplus/tsgrammar/internal/vcs"
)

// Bounds limit the history search. They are the only cancellation the
// search needs: it never fetches more than
// InitialDepth + (MaxAttempts-1)*Step commits.
type Bounds struct {
	InitialDepth int // commits visible after the first fetch
	Step         int // commits added by every further fetch
	MaxAttempts  int // number of fetches
	Workers      int // concurrent probes within one round
}

// DefaultBounds returns the bounds used when none are configured.
func DefaultBounds() Bounds {
	return Bounds{InitialDepth: 10, Step: 20, MaxAttempts: 5, Workers: 4}
}

func (b Bounds) withDefaults() Bounds {
	d := DefaultBounds()
	if b.InitialDepth <= 0 {
		b.InitialDepth = d.InitialDepth
	}
	if b.Step <= 0 {
		b.Step = d.Step
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = d.MaxAttempts
	}
	if b.Workers <= 0 {
		b.Workers = d.Workers
	}
	return b
}

// Opener returns the history a recipe is resolved against.
type Opener func(r recipe.Recipe) (vcs.History, error)

// OpenRemote opens recipe histories with vcs.Open.
func OpenRemote(opts vcs.Options) Opener {
	return func(r recipe.Recipe) (vcs.History, error) {
		return vcs.Open(r.URL(), r.Branch(), opts)
	}
}

// Resolver resolves recipes to commits. Results are cached by language id
// for the lifetime of the Resolver.
type Resolver struct {
	open    Opener
	ceiling int
	bounds  Bounds

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]recipe.Resolved
}

// New creates a Resolver accepting ABIs up to ceiling.
func New(open Opener, ceiling int, bounds Bounds) *Resolver {
	return &Resolver{
		open:    open,
		ceiling: ceiling,
		bounds:  bounds.withDefaults(),
		cache:   make(map[string]recipe.Resolved),
	}
}

// Ceiling returns the highest accepted ABI.
func (r *Resolver) Ceiling() int { return r.ceiling }

// Resolve returns the commit to build for rec.
//
// A pinned recipe is checked with a single read and fails with
// AbiIncompatible above the ceiling. Otherwise history is searched newest
// first and the first commit within the ceiling wins; ExhaustedSearch is
// returned when none is found within the bounds.
func (r *Resolver) Resolve(ctx context.Context, rec recipe.Recipe) (recipe.Resolved, error) {
	lang := rec.Lang()
	if res, ok := r.cached(lang); ok {
		return res, nil
	}
	v, err, _ := r.group.Do(lang, func() (any, error) {
		if res, ok := r.cached(lang); ok {
			return res, nil
		}
		h, err := r.open(rec)
		if err != nil {
			return nil, err
		}
		var res recipe.Resolved
		if rec.Fixed() {
			res, err = r.fixed(ctx, h, rec)
		} else {
			res, err = r.search(ctx, h, rec)
		}
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[lang] = res
		r.mu.Unlock()

		logging.FromContext(ctx).Info("resolved", "lang", lang, "commit", short(res.Commit), "abi", res.ABI)
		return res, nil
	})
	if err != nil {
		return recipe.Resolved{}, grammarerr.WithLang(lang, err)
	}
	return v.(recipe.Resolved), nil
}

// Resolved returns every resolution made so far.
func (r *Resolver) Resolved() []recipe.Resolved {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recipe.Resolved, 0, len(r.cache))
	for _, res := range r.cache {
		out = append(out, res)
	}
	return out
}

func (r *Resolver) cached(lang string) (recipe.Resolved, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.cache[lang]
	return res, ok
}

func (r *Resolver) fixed(ctx context.Context, h vcs.History, rec recipe.Recipe) (recipe.Resolved, error) {
	commit, data, err := h.ReadAt(ctx, rec.Revision(), rec.ParserPath())
	if err != nil {
		return recipe.Resolved{}, err
	}
	n, err := abi.Extract(data)
	if err != nil {
		return recipe.Resolved{}, err
	}
	if n > r.ceiling {
		return recipe.Resolved{}, grammarerr.New(grammarerr.AbiIncompatible,
			"revision %s declares ABI %d, ceiling is %d", rec.Revision(), n, r.ceiling)
	}
	return recipe.Resolved{Lang: rec.Lang(), Commit: commit, ABI: n}, nil
}

type probe struct {
	abi int
	err error
}

func (r *Resolver) search(ctx context.Context, h vcs.History, rec recipe.Recipe) (recipe.Resolved, error) {
	logger := logging.FromContext(ctx).With("lang", rec.Lang())

	var (
		cur     vcs.Cursor
		skipped *multierror.Error
	)
	depth := r.bounds.InitialDepth
	for attempt := 1; attempt <= r.bounds.MaxAttempts; attempt++ {
		if err := h.Fetch(ctx, depth); err != nil {
			return recipe.Resolved{}, err
		}
		commits, err := h.NewCommits(ctx, &cur)
		if err != nil {
			return recipe.Resolved{}, err
		}
		if len(commits) == 0 {
			// The whole history is visible already.
			break
		}
		logger.Debug("probing", "attempt", attempt, "depth", depth, "commits", len(commits))

		probes := r.probeAll(ctx, h, commits, rec.ParserPath())
		if err := ctx.Err(); err != nil {
			return recipe.Resolved{}, err
		}
		// Scan in history order, never in completion order.
		for i, p := range probes {
			if p.err != nil {
				logger.Debug("skipped", "commit", short(commits[i]), "err", p.err)
				skipped = multierror.Append(skipped, p.err)
				continue
			}
			if p.abi <= r.ceiling {
				return recipe.Resolved{Lang: rec.Lang(), Commit: commits[i], ABI: p.abi}, nil
			}
		}
		depth += r.bounds.Step
	}

	e := grammarerr.New(grammarerr.ExhaustedSearch,
		"no commit of %s declares ABI <= %d within %d commits", rec.URL(), r.ceiling, cur.Seen())
	e.Cause = skipped.ErrorOrNil()
	return recipe.Resolved{}, e
}

// probeAll reads the ABI of every commit concurrently. Result i belongs to commits[i].
func (r *Resolver) probeAll(ctx context.Context, h vcs.History, commits []string, path string) []probe {
	probes := make([]probe, len(commits))

	var g errgroup.Group
	g.SetLimit(r.bounds.Workers)
	for i, commit := range commits {
		g.Go(func() error {
			data, err := h.ReadFile(ctx, commit, path)
			if err != nil {
				probes[i].err = err
				return nil
			}
			probes[i].abi, probes[i].err = abi.Extract(data)
			return nil
		})
	}
	g.Wait()
	return probes
}

func short(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
