// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/mod/module"

	"github.com/goplus/tsgrammar/internal/env"
)

// Options configures Open.
type Options struct {
	// Dir is the directory holding history caches. Empty means env.HistoryDir().
	Dir string
	// Git configures the git executable.
	Git []GitOption
	// NoRaw disables single-file reads over HTTP for supported hosts.
	NoRaw bool
}

// Open returns the history of ref in remote, cached on disk so later
// processes reuse what was already transferred. An empty ref means the
// remote's default branch.
func Open(remote, ref string, opts Options) (History, error) {
	dir := opts.Dir
	if dir == "" {
		var err error
		if dir, err = env.HistoryDir(); err != nil {
			return nil, err
		}
	}
	cacheDir, err := cacheDirOf(dir, remote)
	if err != nil {
		return nil, err
	}
	h := newGitHistory(newGitVCS(opts.Git...), remote, ref, cacheDir)

	if opts.NoRaw {
		return h, nil
	}
	host, owner, repo, err := parseRepoPath(repoPathOf(remote))
	if err == nil && host == "github.com" {
		return &githubHistory{gitHistory: h, client: newGitHubClient(), owner: owner, repo: repo}, nil
	}
	return h, nil
}

// repoPathOf strips the scheme, user info and ".git" suffix from remote:
// "https://github.com/owner/repo.git" becomes "github.com/owner/repo".
func repoPathOf(remote string) string {
	p := remote
	if u, err := url.Parse(remote); err == nil && (u.Host != "" || u.Scheme == "file") {
		p = u.Host + u.Path
	} else if at := strings.Index(remote, "@"); at >= 0 && strings.Contains(remote, ":") {
		// scp-like syntax: git@github.com:owner/repo.git
		p = strings.Replace(remote[at+1:], ":", "/", 1)
	}
	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	return p
}

// parseRepoPath parses "github.com/owner/repo" into components.
func parseRepoPath(repoPath string) (host, owner, repo string, err error) {
	parts := strings.Split(repoPath, "/")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("invalid repo path: %s, expected host/owner/repo", repoPath)
	}
	return parts[0], parts[1], strings.Join(parts[2:], "/"), nil
}

// cacheDirOf returns the history cache directory of remote under root.
// Module-shaped locators use module path escaping, so case-different
// repositories never share a cache on case-insensitive file systems.
func cacheDirOf(root, remote string) (string, error) {
	p := repoPathOf(remote)
	if p == "" {
		return "", fmt.Errorf("invalid remote: %q", remote)
	}
	if escaped, err := module.EscapePath(p); err == nil {
		return filepath.Join(root, filepath.FromSlash(escaped)), nil
	}
	return filepath.Join(root, "_local", url.PathEscape(p)), nil
}
