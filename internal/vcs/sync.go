// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// Sync materializes commit of remote into destDir. The whole tree is checked
// out: grammars below subpath commonly include sources shared by sibling
// directories, such as tree-sitter-typescript's common/scanner.h. Only the
// blobs of commit are transferred. subpath, when not empty, must exist at
// commit.
//
// destDir may hold an earlier sync of the same remote; it is moved to commit.
func Sync(ctx context.Context, remote, commit, subpath, destDir string, opts ...GitOption) error {
	return newGitVCS(opts...).sync(ctx, remote, commit, subpath, destDir)
}

func (g *gitVCS) sync(ctx context.Context, remote, commit, subpath, destDir string) error {
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return err
	}

	subpath = path.Clean("/" + filepath.ToSlash(subpath))[1:]
	if _, err := os.Stat(filepath.Join(destDir, ".git")); err != nil {
		if err := g.run(ctx, destDir, "init", "--quiet"); err != nil {
			return fmt.Errorf("sync %s: %w", remote, err)
		}
		if err := g.run(ctx, destDir, "remote", "add", "origin", remote); err != nil {
			return fmt.Errorf("sync %s: %w", remote, err)
		}
	}

	err := g.run(ctx, destDir, "fetch", "--quiet", "--no-tags", "--depth=1", "--filter=blob:none", "origin", commit)
	if err != nil {
		return classifyFetch(remote, err)
	}
	if err := g.run(ctx, destDir, "checkout", "--quiet", "--force", "FETCH_HEAD"); err != nil {
		// The checkout downloads the blobs it needs.
		return classifyRead(commit, subpath, err)
	}
	if g.sparse(ctx, destDir) {
		if err := g.run(ctx, destDir, "sparse-checkout", "disable"); err != nil {
			return classifyRead(commit, subpath, err)
		}
	}

	if subpath != "" {
		fi, err := os.Stat(filepath.Join(destDir, filepath.FromSlash(subpath)))
		if err != nil || !fi.IsDir() {
			return grammarerr.New(grammarerr.NotFoundAtCommit, "%s at %s", subpath, shortHash(commit))
		}
	}
	return nil
}

// sparse reports whether the checkout in dir is limited by sparse-checkout.
func (g *gitVCS) sparse(ctx context.Context, dir string) bool {
	out, err := g.output(ctx, dir, "config", "--get", "core.sparseCheckout")
	return err == nil && strings.TrimSpace(out) == "true"
}
