// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/recipe"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(afero.NewMemMapFs(), "/grammars", t.TempDir())
	r.goos = "linux"
	return r
}

// builtLibrary writes a fake library to disk and returns its path.
func builtLibrary(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "lib.so")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRegistryInstalled(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Installed("go")
	if !errors.Is(err, grammarerr.ArtifactMissing) {
		t.Fatalf("Installed before Register error = %v, want ArtifactMissing", err)
	}

	p, err := r.Register("go", builtLibrary(t, "ELF"), recipe.Resolved{Lang: "go", Commit: "c1", ABI: 14})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if p != filepath.Join("/grammars", "libtree-sitter-go.so") {
		t.Errorf("Register path = %q", p)
	}
	got, err := r.Installed("go")
	if err != nil {
		t.Fatalf("Installed failed: %v", err)
	}
	if got != p {
		t.Errorf("Installed = %q, want %q", got, p)
	}
	data, _ := afero.ReadFile(r.fs, p)
	if string(data) != "ELF" {
		t.Errorf("registered content = %q", data)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("go", builtLibrary(t, "old"), recipe.Resolved{Lang: "go", Commit: "c0", ABI: 13})
	r.Register("go", builtLibrary(t, "new"), recipe.Resolved{Lang: "go", Commit: "c1", ABI: 14})

	data, _ := afero.ReadFile(r.fs, r.Path("go"))
	if string(data) != "new" {
		t.Errorf("registered content = %q, want new", data)
	}
	entries, _ := afero.ReadDir(r.fs, "/grammars")
	for _, e := range entries {
		if e.Name() != "libtree-sitter-go.so" && e.Name() != cacheFile {
			t.Errorf("unexpected file %s left in registry", e.Name())
		}
	}
}

func TestRegistryEntries(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("python", builtLibrary(t, "x"), recipe.Resolved{Lang: "python", Commit: "p1", ABI: 14})
	r.Register("go", builtLibrary(t, "x"), recipe.Resolved{Lang: "go", Commit: "g1", ABI: 13})

	// A library removed by hand is no longer reported.
	r.Register("rust", builtLibrary(t, "x"), recipe.Resolved{Lang: "rust", Commit: "r1", ABI: 14})
	r.fs.Remove(r.Path("rust"))

	got, err := r.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	want := []recipe.Resolved{
		{Lang: "go", Commit: "g1", ABI: 13},
		{Lang: "python", Commit: "p1", ABI: 14},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryRecorded(t *testing.T) {
	r := newTestRegistry(t)
	if _, ok := r.Recorded("go"); ok {
		t.Error("Recorded reported an unregistered language")
	}

	r.Register("go", builtLibrary(t, "x"), recipe.Resolved{Lang: "go", Commit: "g1", ABI: 13})
	got, ok := r.Recorded("go")
	if !ok {
		t.Fatal("Recorded(go) missing")
	}
	if diff := cmp.Diff(recipe.Resolved{Lang: "go", Commit: "g1", ABI: 13}, got); diff != "" {
		t.Errorf("Recorded mismatch (-want +got):\n%s", diff)
	}

	r.fs.Remove(r.Path("go"))
	if _, ok := r.Recorded("go"); ok {
		t.Error("Recorded reported a removed library")
	}
}

func TestRegistryProduce(t *testing.T) {
	r := newTestRegistry(t)
	lib := builtLibrary(t, "ELF")

	var builds atomic.Int32
	build := func(ctx context.Context) (string, recipe.Resolved, error) {
		builds.Add(1)
		return lib, recipe.Resolved{Lang: "go", Commit: "c1", ABI: 14}, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Produce(context.Background(), "go", build); err != nil {
				t.Errorf("Produce failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := builds.Load(); n != 1 {
		t.Errorf("build ran %d times, want 1", n)
	}

	// Installed languages are never rebuilt.
	if _, err := r.Produce(context.Background(), "go", build); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if n := builds.Load(); n != 1 {
		t.Errorf("build ran %d times after install, want 1", n)
	}
}

func TestRegistryProduceError(t *testing.T) {
	r := newTestRegistry(t)
	boom := grammarerr.New(grammarerr.Compile, "boom")
	_, err := r.Produce(context.Background(), "go", func(ctx context.Context) (string, recipe.Resolved, error) {
		return "", recipe.Resolved{}, boom
	})
	if !errors.Is(err, grammarerr.Compile) {
		t.Fatalf("Produce error = %v, want Compile", err)
	}
	if _, err := r.Installed("go"); err == nil {
		t.Error("failed build left a registered library")
	}
}
