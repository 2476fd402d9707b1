// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// Integration tests (require a git executable)

// requireGit skips integration tests when git cannot run.
func requireGit(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping git integration test in short mode")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// newUpstream initializes a repository serving partial clones and returns
// its directory and a git runner inside it.
func newUpstream(t *testing.T) (string, func(args ...string) string) {
	t.Helper()
	requireGit(t)

	dir := t.TempDir()
	git := func(args ...string) string {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %s: %v\n%s", args[0], err, out)
		}
		return strings.TrimSpace(string(out))
	}
	git("init", "--quiet", "--initial-branch=main")
	git("config", "uploadpack.allowFilter", "true")
	git("config", "uploadpack.allowAnySHA1InWant", "true")
	return dir, git
}

// writeFiles writes files, keyed by slash-separated paths, below dir.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// newSourceRepo creates a repository whose commits declare abis, oldest
// first, and returns its file:// URL and the commit hashes newest first.
func newSourceRepo(t *testing.T, abis ...int) (string, []string) {
	t.Helper()
	dir, git := newUpstream(t)

	var commits []string
	for i, abi := range abis {
		writeFiles(t, dir, map[string]string{
			"src/parser.c": fmt.Sprintf("// revision %d\n#define LANGUAGE_VERSION %d\n", i, abi),
		})
		git("add", ".")
		git("commit", "--quiet", "-m", fmt.Sprintf("revision %d", i))
		commits = append([]string{git("rev-parse", "HEAD")}, commits...)
	}
	return "file://" + filepath.ToSlash(dir), commits
}

func TestGitHistoryIncrementalFetch(t *testing.T) {
	remote, commits := newSourceRepo(t, 13, 14, 14, 15, 15)
	ctx := context.Background()
	h, err := Open(remote, "main", Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var cur Cursor
	if got, _ := h.NewCommits(ctx, &cur); len(got) != 0 {
		t.Errorf("NewCommits before Fetch = %v, want empty", got)
	}

	if err := h.Fetch(ctx, 2); err != nil {
		t.Fatalf("Fetch(2) failed: %v", err)
	}
	got, err := h.NewCommits(ctx, &cur)
	if err != nil {
		t.Fatalf("NewCommits failed: %v", err)
	}
	if strings.Join(got, " ") != strings.Join(commits[:2], " ") {
		t.Errorf("after Fetch(2): got %v, want %v", got, commits[:2])
	}

	// Smaller depth is a no-op.
	if err := h.Fetch(ctx, 1); err != nil {
		t.Fatalf("Fetch(1) failed: %v", err)
	}

	if err := h.Fetch(ctx, 4); err != nil {
		t.Fatalf("Fetch(4) failed: %v", err)
	}
	got, err = h.NewCommits(ctx, &cur)
	if err != nil {
		t.Fatalf("NewCommits failed: %v", err)
	}
	if strings.Join(got, " ") != strings.Join(commits[2:4], " ") {
		t.Errorf("after Fetch(4): got %v, want only the new %v", got, commits[2:4])
	}

	data, err := h.ReadFile(ctx, commits[3], "src/parser.c")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "LANGUAGE_VERSION 14") {
		t.Errorf("ReadFile = %q, want ABI 14", data)
	}

	_, err = h.ReadFile(ctx, commits[0], "src/missing.c")
	if !errors.Is(err, grammarerr.NotFoundAtCommit) {
		t.Errorf("ReadFile(missing) error = %v, want NotFoundAtCommit", err)
	}
}

func TestGitHistoryReadAt(t *testing.T) {
	remote, commits := newSourceRepo(t, 13, 14, 15)
	h, err := Open(remote, "", Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	commit, data, err := h.ReadAt(context.Background(), commits[1], "src/parser.c")
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if commit != commits[1] {
		t.Errorf("ReadAt commit = %q, want %q", commit, commits[1])
	}
	if !strings.Contains(string(data), "LANGUAGE_VERSION 14") {
		t.Errorf("ReadAt data = %q", data)
	}
}

func TestGitHistoryRepoNotFound(t *testing.T) {
	requireGit(t)

	remote := "file://" + filepath.ToSlash(filepath.Join(t.TempDir(), "missing"))
	h, err := Open(remote, "", Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	err = h.Fetch(context.Background(), 1)
	if !errors.Is(err, grammarerr.RepoNotFound) {
		t.Errorf("Fetch error = %v, want RepoNotFound", err)
	}
}

func TestSync(t *testing.T) {
	remote, commits := newSourceRepo(t, 13, 14, 15)
	ctx := context.Background()
	dest := t.TempDir()

	if err := Sync(ctx, remote, commits[1], "", dest); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "src", "parser.c"))
	if err != nil {
		t.Fatalf("checked out parser.c: %v", err)
	}
	if !strings.Contains(string(data), "LANGUAGE_VERSION 14") {
		t.Errorf("parser.c = %q, want ABI 14", data)
	}

	// A second sync moves the same checkout.
	if err := Sync(ctx, remote, commits[0], "src", dest); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dest, "src", "parser.c"))
	if !strings.Contains(string(data), "LANGUAGE_VERSION 15") {
		t.Errorf("parser.c after resync = %q, want ABI 15", data)
	}
}

func TestGitHistoryBranchesShareCache(t *testing.T) {
	dir, git := newUpstream(t)
	writeFiles(t, dir, map[string]string{"src/parser.c": "#define LANGUAGE_VERSION 14\n"})
	git("add", ".")
	git("commit", "--quiet", "-m", "main")
	mainHead := git("rev-parse", "HEAD")
	git("checkout", "--quiet", "-b", "other")
	writeFiles(t, dir, map[string]string{"src/parser.c": "#define LANGUAGE_VERSION 15\n"})
	git("commit", "--quiet", "-am", "other")
	otherHead := git("rev-parse", "HEAD")
	remote := "file://" + filepath.ToSlash(dir)

	ctx := context.Background()
	cache := t.TempDir()
	a, err := Open(remote, "main", Options{Dir: cache})
	if err != nil {
		t.Fatalf("Open(main) failed: %v", err)
	}
	b, err := Open(remote, "other", Options{Dir: cache})
	if err != nil {
		t.Fatalf("Open(other) failed: %v", err)
	}
	if err := a.Fetch(ctx, 1); err != nil {
		t.Fatalf("main Fetch failed: %v", err)
	}
	if err := b.Fetch(ctx, 1); err != nil {
		t.Fatalf("other Fetch failed: %v", err)
	}

	var curA, curB Cursor
	gotA, err := a.NewCommits(ctx, &curA)
	if err != nil {
		t.Fatalf("main NewCommits failed: %v", err)
	}
	if len(gotA) != 1 || gotA[0] != mainHead {
		t.Errorf("main history = %v, want [%s]", gotA, mainHead)
	}
	gotB, err := b.NewCommits(ctx, &curB)
	if err != nil {
		t.Fatalf("other NewCommits failed: %v", err)
	}
	if len(gotB) == 0 || gotB[0] != otherHead {
		t.Errorf("other history = %v, want %s first", gotB, otherHead)
	}
}

func TestGitHistoryConcurrentFetch(t *testing.T) {
	remote, commits := newSourceRepo(t, 13, 14, 15)
	ctx := context.Background()
	cache := t.TempDir()

	// Separate histories stand in for separate processes sharing the cache.
	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := Open(remote, "main", Options{Dir: cache, NoRaw: true})
			if err != nil {
				errs[i] = err
				return
			}
			if err := h.Fetch(ctx, 1); err != nil {
				errs[i] = err
				return
			}
			errs[i] = h.Fetch(ctx, 3)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("history %d: %v", i, err)
		}
	}

	h, _ := Open(remote, "main", Options{Dir: cache})
	if err := h.Fetch(ctx, 3); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	var cur Cursor
	got, err := h.NewCommits(ctx, &cur)
	if err != nil {
		t.Fatalf("NewCommits failed: %v", err)
	}
	if strings.Join(got, " ") != strings.Join(commits, " ") {
		t.Errorf("history = %v, want %v", got, commits)
	}
}

func TestSyncSharedSources(t *testing.T) {
	dir, git := newUpstream(t)
	writeFiles(t, dir, map[string]string{
		"common/scanner.h":        "#define SHARED 1\n",
		"tsx/src/parser.c":        "#define LANGUAGE_VERSION 14\n",
		"tsx/src/scanner.c":       "#include \"../../common/scanner.h\"\n",
		"typescript/src/parser.c": "#define LANGUAGE_VERSION 14\n",
	})
	git("add", ".")
	git("commit", "--quiet", "-m", "monorepo")
	commit := git("rev-parse", "HEAD")
	remote := "file://" + filepath.ToSlash(dir)

	ctx := context.Background()
	dest := t.TempDir()
	if err := Sync(ctx, remote, commit, "tsx", dest); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	// scanner.c includes a header outside the grammar directory.
	included := filepath.Join(dest, "tsx", "src", "..", "..", "common", "scanner.h")
	if _, err := os.Stat(included); err != nil {
		t.Errorf("header included by tsx/src/scanner.c missing: %v", err)
	}

	err := Sync(ctx, remote, commit, "php", dest)
	if !errors.Is(err, grammarerr.NotFoundAtCommit) {
		t.Errorf("Sync(php) error = %v, want NotFoundAtCommit", err)
	}
}

func TestSyncClearsSparseCheckout(t *testing.T) {
	dir, git := newUpstream(t)
	writeFiles(t, dir, map[string]string{
		"common/scanner.h": "#define SHARED 1\n",
		"tsx/src/parser.c": "#define LANGUAGE_VERSION 14\n",
	})
	git("add", ".")
	git("commit", "--quiet", "-m", "monorepo")
	commit := git("rev-parse", "HEAD")
	remote := "file://" + filepath.ToSlash(dir)

	ctx := context.Background()
	dest := t.TempDir()
	if err := Sync(ctx, remote, commit, "", dest); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	// Leave dest sparse, as a checkout limited to tsx would be.
	g := newGitVCS()
	if err := g.run(ctx, dest, "sparse-checkout", "init", "--no-cone"); err != nil {
		t.Fatalf("sparse-checkout init: %v", err)
	}
	if err := g.run(ctx, dest, "sparse-checkout", "set", "tsx/**"); err != nil {
		t.Fatalf("sparse-checkout set: %v", err)
	}
	header := filepath.Join(dest, "common", "scanner.h")
	if _, err := os.Stat(header); err == nil {
		t.Fatal("sparse-checkout kept common/scanner.h")
	}

	if err := Sync(ctx, remote, commit, "", dest); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if _, err := os.Stat(header); err != nil {
		t.Errorf("common/scanner.h missing after resync: %v", err)
	}
	if g.sparse(ctx, dest) {
		t.Error("checkout still sparse after resync")
	}
}
