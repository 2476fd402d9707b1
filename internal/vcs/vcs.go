// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// History is an incrementally fetched view of one ref of a remote repository.
// No working tree is ever materialized.
type History interface {
	// Fetch extends the visible history to depth commits from the tip.
	// History already visible is not transferred again; a depth not larger
	// than the current one is a no-op.
	Fetch(ctx context.Context, depth int) error

	// NewCommits returns the visible commits cur has not surfaced yet,
	// newest first, and marks them as surfaced.
	NewCommits(ctx context.Context, cur *Cursor) ([]string, error)

	// ReadFile returns the content of path at commit.
	ReadFile(ctx context.Context, commit, path string) ([]byte, error)

	// ReadAt fetches the single revision rev and reads path from it.
	// It returns the commit rev names.
	ReadAt(ctx context.Context, rev, path string) (commit string, data []byte, err error)
}

// Cursor remembers which commits have been surfaced to a caller.
// The zero value is ready to use.
type Cursor struct {
	seen map[string]bool
}

// Seen returns the number of commits surfaced so far.
func (c *Cursor) Seen() int { return len(c.seen) }

// Advance marks commits as surfaced and returns those not surfaced before,
// keeping their order. History implementations call it from NewCommits.
func (c *Cursor) Advance(commits []string) []string {
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	var fresh []string
	for _, commit := range commits {
		if c.seen[commit] {
			continue
		}
		c.seen[commit] = true
		fresh = append(fresh, commit)
	}
	return fresh
}

// gitVCS runs git commands.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

func newGitVCS(opts ...GitOption) *gitVCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", &gitError{args: args, msg: msg, err: err}
		}
		return "", &gitError{args: args, msg: err.Error(), err: err}
	}
	return stdout.String(), nil
}

type gitError struct {
	args []string
	msg  string
	err  error
}

func (e *gitError) Error() string { return fmt.Sprintf("git %s: %s", e.args[0], e.msg) }
func (e *gitError) Unwrap() error { return e.err }

var repoMissing = []string{
	"repository not found",
	"does not appear to be a git repository",
	"couldn't find remote ref",
	"not our ref",
	"no such repository",
}

var objectMissing = []string{
	"does not exist in",
	"exists on disk, but not in",
	"not a valid object name",
	"invalid object name",
}

// classifyFetch maps a failed fetch to RepoNotFound or Network.
func classifyFetch(remote string, err error) error {
	if matchAny(err, repoMissing) {
		return grammarerr.Wrap(grammarerr.RepoNotFound, err, "fetch %s", remote)
	}
	return grammarerr.Wrap(grammarerr.Network, err, "fetch %s", remote)
}

// classifyRead maps a failed object read to NotFoundAtCommit or Network.
// Blobs are fetched lazily from the promisor remote, so anything that is
// not a missing object is a transport failure.
func classifyRead(commit, path string, err error) error {
	if matchAny(err, objectMissing) {
		return grammarerr.Wrap(grammarerr.NotFoundAtCommit, err, "%s at %s", path, shortHash(commit))
	}
	return grammarerr.Wrap(grammarerr.Network, err, "read %s at %s", path, shortHash(commit))
}

func matchAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func shortHash(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
