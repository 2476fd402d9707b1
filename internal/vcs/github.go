// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// client reads single files from a code hosting platform without git.
type client interface {
	// ReadFile reads the content of a file at ref.
	ReadFile(ctx context.Context, owner, repo, ref, path string) ([]byte, error)
}

// githubClient implements client using raw GitHub URLs (no API).
type githubClient struct {
	httpClient *http.Client
	baseURL    string
}

// newGitHubClient creates a new GitHub client.
func newGitHubClient() *githubClient {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = 60 * time.Second
	return &githubClient{
		httpClient: c,
		baseURL:    "https://raw.githubusercontent.com",
	}
}

// ReadFile reads the content of a file using raw.githubusercontent.com.
func (g *githubClient) ReadFile(ctx context.Context, owner, repo, ref, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s", g.baseURL, owner, repo, ref, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, grammarerr.Wrap(grammarerr.Network, err, "fetch %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, grammarerr.New(grammarerr.NotFoundAtCommit, "%s at %s", path, shortHash(ref))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, grammarerr.New(grammarerr.Network, "unexpected status %d for %s", resp.StatusCode, path)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, grammarerr.Wrap(grammarerr.Network, err, "read %s", path)
	}
	return data, nil
}

var fullHash = regexp.MustCompile(`^[0-9a-f]{40}$`)

// githubHistory reads pinned commits over HTTP, saving a git fetch.
// Everything else goes through git.
type githubHistory struct {
	*gitHistory
	client client
	owner  string
	repo   string
}

func (h *githubHistory) ReadAt(ctx context.Context, rev, path string) (string, []byte, error) {
	// Only a full hash names a commit unambiguously; other refs may move.
	if !fullHash.MatchString(rev) {
		return h.gitHistory.ReadAt(ctx, rev, path)
	}
	data, err := h.client.ReadFile(ctx, h.owner, h.repo, rev, path)
	if err != nil {
		return "", nil, err
	}
	return rev, data, nil
}
