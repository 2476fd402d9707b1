// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
)

// mockClient implements client interface for unit testing.
type mockClient struct {
	readFunc func(ctx context.Context, owner, repo, ref, path string) ([]byte, error)
	reads    int
}

func (m *mockClient) ReadFile(ctx context.Context, owner, repo, ref, path string) ([]byte, error) {
	m.reads++
	if m.readFunc != nil {
		return m.readFunc(ctx, owner, repo, ref, path)
	}
	return nil, nil
}
