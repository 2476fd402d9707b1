// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rogpeppe/go-internal/lockedfile"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// tipPrefix prefixes the local refs searched remote refs are fetched into.
// Histories of different branches share a cache directory but never a ref.
const tipPrefix = "refs/tsgrammar/tip/"

// gitHistory implements History with a bare, blobless, shallow repository.
// Only commits and trees are transferred by Fetch; blobs are downloaded on
// demand by ReadFile.
type gitHistory struct {
	git    *gitVCS
	remote string
	ref    string // searched ref, "HEAD" for the remote default branch
	dir    string
	tip    string // local ref ref is fetched into

	mu    sync.Mutex
	depth int // visible depth fetched by this process
}

// newGitHistory returns the history of remote's ref kept in the bare repository dir.
func newGitHistory(g *gitVCS, remote, ref, dir string) *gitHistory {
	if ref == "" {
		ref = "HEAD"
	}
	return &gitHistory{git: g, remote: remote, ref: ref, dir: dir, tip: tipPrefix + ref}
}

// lock serializes fetches into the cache directory across processes. Git
// fails concurrent shallow fetches on shallow.lock, and FETCH_HEAD is shared.
func (h *gitHistory) lock() (unlock func(), err error) {
	if err := os.MkdirAll(filepath.Dir(h.dir), 0700); err != nil {
		return nil, err
	}
	return lockedfile.MutexAt(h.dir + ".lock").Lock()
}

func (h *gitHistory) init(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(h.dir, "HEAD")); err == nil {
		return nil
	}
	if err := os.MkdirAll(h.dir, 0700); err != nil {
		return err
	}
	if err := h.git.run(ctx, h.dir, "init", "--bare", "--quiet"); err != nil {
		return fmt.Errorf("init history cache: %w", err)
	}
	if err := h.git.run(ctx, h.dir, "remote", "add", "origin", h.remote); err != nil {
		return fmt.Errorf("init history cache: %w", err)
	}
	return nil
}

func (h *gitHistory) Fetch(ctx context.Context, depth int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if depth <= h.depth {
		return nil
	}
	unlock, err := h.lock()
	if err != nil {
		return err
	}
	defer unlock()
	if err := h.init(ctx); err != nil {
		return err
	}

	args := []string{"fetch", "--quiet", "--no-tags", "--filter=blob:none"}
	if h.depth == 0 {
		args = append(args, fmt.Sprintf("--depth=%d", depth))
	} else {
		// Only the commits past the current shallow boundary are sent.
		args = append(args, fmt.Sprintf("--deepen=%d", depth-h.depth))
	}
	args = append(args, "origin", "+"+h.ref+":"+h.tip)

	if err := h.git.run(ctx, h.dir, args...); err != nil {
		return classifyFetch(h.remote, err)
	}
	h.depth = depth
	return nil
}

func (h *gitHistory) NewCommits(ctx context.Context, cur *Cursor) ([]string, error) {
	h.mu.Lock()
	fetched := h.depth > 0
	h.mu.Unlock()
	if !fetched {
		return nil, nil
	}

	out, err := h.git.output(ctx, h.dir, "rev-list", h.tip)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	return cur.Advance(strings.Fields(out)), nil
}

func (h *gitHistory) ReadFile(ctx context.Context, commit, path string) ([]byte, error) {
	out, err := h.git.output(ctx, h.dir, "cat-file", "blob", commit+":"+path)
	if err != nil {
		return nil, classifyRead(commit, path, err)
	}
	return []byte(out), nil
}

func (h *gitHistory) ReadAt(ctx context.Context, rev, path string) (string, []byte, error) {
	commit, err := h.fetchRevision(ctx, rev)
	if err != nil {
		return "", nil, err
	}
	data, err := h.ReadFile(ctx, commit, path)
	if err != nil {
		return "", nil, err
	}
	return commit, data, nil
}

// fetchRevision fetches the single revision rev and returns its commit.
func (h *gitHistory) fetchRevision(ctx context.Context, rev string) (string, error) {
	unlock, err := h.lock()
	if err != nil {
		return "", err
	}
	defer unlock()
	if err := h.init(ctx); err != nil {
		return "", err
	}
	err = h.git.run(ctx, h.dir, "fetch", "--quiet", "--no-tags", "--filter=blob:none", "--depth=1", "origin", rev)
	if err != nil {
		return "", classifyFetch(h.remote, err)
	}
	out, err := h.git.output(ctx, h.dir, "rev-parse", "FETCH_HEAD")
	if err != nil {
		return "", grammarerr.Wrap(grammarerr.RepoNotFound, err, "resolve %s", rev)
	}
	return strings.TrimSpace(out), nil
}
