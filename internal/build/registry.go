// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rogpeppe/go-internal/lockedfile"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/logging"
	"github.com/goplus/tsgrammar/internal/recipe"
)

// Registry is the directory built grammars are registered in, where the
// editor loads them from. A grammar is installed exactly when its library
// is present in the registry.
type Registry struct {
	fs      afero.Fs
	dir     string
	lockDir string
	goos    string

	group singleflight.Group
}

// NewRegistry returns the registry in dir on fs. Cross-process locks live
// in lockDir on the local file system.
func NewRegistry(fs afero.Fs, dir, lockDir string) *Registry {
	return &Registry{fs: fs, dir: dir, lockDir: lockDir, goos: runtime.GOOS}
}

// Path returns where the library of lang is registered.
func (r *Registry) Path(lang string) string {
	return filepath.Join(r.dir, ArtifactName(lang, r.goos))
}

// Installed returns the registered library of lang, or an ArtifactMissing
// error.
func (r *Registry) Installed(lang string) (string, error) {
	p := r.Path(lang)
	fi, err := r.fs.Stat(p)
	if err != nil {
		return "", grammarerr.Wrap(grammarerr.ArtifactMissing, err, "%s not registered", filepath.Base(p))
	}
	if fi.IsDir() {
		return "", grammarerr.New(grammarerr.ArtifactMissing, "%s is a directory", p)
	}
	return p, nil
}

// Register copies the library built at built into the registry and records
// the revision it was built from. The library is replaced atomically.
func (r *Registry) Register(lang, built string, rev recipe.Resolved) (string, error) {
	f, err := os.Open(built)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	dst := r.Path(lang)
	tmp, err := afero.TempFile(r.fs, r.dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, f); err != nil {
		tmp.Close()
		r.fs.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		r.fs.Remove(tmp.Name())
		return "", err
	}
	if err := r.fs.Chmod(tmp.Name(), 0o755); err != nil {
		r.fs.Remove(tmp.Name())
		return "", err
	}
	if err := r.fs.Rename(tmp.Name(), dst); err != nil {
		r.fs.Remove(tmp.Name())
		return "", err
	}

	unlock, err := r.lock(cacheFile)
	if err != nil {
		return "", err
	}
	defer unlock()
	cache, err := r.loadCache()
	if err != nil {
		// A corrupt cache only loses metadata.
		cache = &buildCache{}
	}
	cache.set(lang, &buildEntry{Commit: rev.Commit, ABI: rev.ABI, BuildTime: time.Now()})
	if err := r.saveCache(cache); err != nil {
		return "", err
	}
	return dst, nil
}

// Produce returns the registered library of lang, calling build and
// registering its result when there is none. At most one build of a
// language runs at a time, in this process and across processes sharing
// lockDir.
func (r *Registry) Produce(ctx context.Context, lang string, build func(ctx context.Context) (string, recipe.Resolved, error)) (string, error) {
	v, err, _ := r.group.Do(lang, func() (any, error) {
		if p, err := r.Installed(lang); err == nil {
			return p, nil
		}

		unlock, err := r.lock(lang)
		if err != nil {
			return nil, err
		}
		defer unlock()

		// Double-check after acquiring the lock (another process may have built it)
		if p, err := r.Installed(lang); err == nil {
			logging.FromContext(ctx).Debug("registered by another process", "lang", lang)
			return p, nil
		}

		built, rev, err := build(ctx)
		if err != nil {
			return nil, err
		}
		p, err := r.Register(lang, built, rev)
		if err != nil {
			return nil, err
		}
		logging.FromContext(ctx).Info("installed", "lang", lang, "path", p)
		return p, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Registry) lock(name string) (unlock func(), err error) {
	if err := os.MkdirAll(r.lockDir, 0o700); err != nil {
		return nil, err
	}
	return lockedfile.MutexAt(filepath.Join(r.lockDir, name+".lock")).Lock()
}

func sortResolved(rs []recipe.Resolved) {
	slices.SortFunc(rs, func(a, b recipe.Resolved) int {
		return strings.Compare(a.Lang, b.Lang)
	})
}
