// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build compiles grammar sources into loadable shared libraries
// and registers the results.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/logging"
	"github.com/goplus/tsgrammar/internal/toolchain"
)

// Builder runs build plans through a tool resolver.
type Builder struct {
	tools   toolchain.Resolver
	workDir string
	goos    string
}

// Options configures a Builder.
type Options struct {
	// WorkDir holds one build directory per language.
	WorkDir string
	// GOOS is the target operating system. Empty means runtime.GOOS.
	GOOS string
}

// NewBuilder creates a Builder resolving its tools with tools.
func NewBuilder(tools toolchain.Resolver, opts Options) *Builder {
	if tools == nil {
		tools = toolchain.Passthrough{}
	}
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return &Builder{tools: tools, workDir: opts.WorkDir, goos: goos}
}

// Build compiles src and returns the path of the built library. The build
// directory is recreated first, so objects of an earlier build never reach
// the link step.
func (b *Builder) Build(ctx context.Context, src Source) (string, error) {
	steps, err := Plan(src, b.goos)
	if err != nil {
		return "", grammarerr.WithLang(src.Lang, err)
	}

	dir := filepath.Join(b.workDir, src.Lang)
	if err := os.RemoveAll(dir); err != nil {
		return "", grammarerr.WithLang(src.Lang, fmt.Errorf("clean build directory: %w", err))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}

	logger := logging.FromContext(ctx).With("lang", src.Lang)
	for _, step := range steps {
		if err := b.run(ctx, dir, step); err != nil {
			return "", grammarerr.WithLang(src.Lang, err)
		}
	}

	artifact := filepath.Join(dir, ArtifactName(src.Lang, b.goos))
	if _, err := os.Stat(artifact); err != nil {
		return "", grammarerr.WithLang(src.Lang, grammarerr.Wrap(grammarerr.Compile, err, "link produced no library"))
	}
	logger.Debug("built", "artifact", artifact)
	return artifact, nil
}

func (b *Builder) run(ctx context.Context, dir string, step Step) error {
	tool, err := b.tools.Resolve(step.Tool)
	if err != nil {
		return err
	}
	args := step.Args
	if step.ImplicitInputs {
		if b.tools.Substituted(step.Tool) {
			args, err = appendObjects(args, dir)
		} else {
			args, err = expandGlobs(args, dir)
		}
		if err != nil {
			return err
		}
	}

	argv := tool.Command(args...)
	logging.FromContext(ctx).Debug("run", "cmd", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		e := grammarerr.Wrap(grammarerr.Compile, err, "%s", tool.Name)
		e.Output = string(out)
		return e
	}
	return nil
}

// expandGlobs replaces glob arguments by their matches in dir, sorted.
// A glob matching nothing is kept literally, as a shell would.
func expandGlobs(args []string, dir string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			out = append(out, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, arg))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			out = append(out, arg)
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			out = append(out, filepath.Base(m))
		}
	}
	return out, nil
}

// appendObjects drops glob arguments and appends every object file in dir,
// sorted. Substituted tools are not run through a shell and would receive
// the glob literally.
func appendObjects(args []string, dir string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			out = append(out, arg)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var objs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".o", ".obj":
			objs = append(objs, e.Name())
		}
	}
	slices.Sort(objs)
	return append(out, objs...), nil
}
