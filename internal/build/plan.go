// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"os"
	"path/filepath"
	"runtime"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/toolchain"
)

// objectGlob names every object file in the build directory. A shell would
// expand it; a substituted tool gets the objects appended instead.
const objectGlob = "*.o"

// Source is a checked out grammar ready to build.
type Source struct {
	Lang string
	Dir  string // directory holding parser.c
}

// Step is one tool invocation of a build. Paths in Args are relative to
// the build directory.
type Step struct {
	Tool string // logical tool name
	Args []string

	// ImplicitInputs marks a step relying on the build directory's object
	// files being passed without naming them.
	ImplicitInputs bool
}

// ArtifactName returns the file name of the shared library built for lang
// on goos.
func ArtifactName(lang, goos string) string {
	ext := ".so"
	switch goos {
	case "darwin":
		ext = ".dylib"
	case "windows":
		ext = ".dll"
	}
	return "libtree-sitter-" + lang + ext
}

// Plan returns the steps building src for goos: compile parser.c, compile
// the external scanner if there is one, then link.
//
// A scanner.cc switches every step to the C++ compiler.
func Plan(src Source, goos string) ([]Step, error) {
	if goos == "" {
		goos = runtime.GOOS
	}
	parser := filepath.Join(src.Dir, "parser.c")
	if _, err := os.Stat(parser); err != nil {
		return nil, grammarerr.Wrap(grammarerr.Compile, err, "no parser source")
	}

	tool := toolchain.CCompiler
	var scanner string
	for _, name := range []string{"scanner.c", "scanner.cc"} {
		p := filepath.Join(src.Dir, name)
		if _, err := os.Stat(p); err == nil {
			scanner = p
			if name == "scanner.cc" {
				tool = toolchain.CXXCompiler
			}
			break
		}
	}

	cflags := []string{"-c", "-O2", "-I", src.Dir}
	if goos != "windows" {
		cflags = append(cflags, "-fPIC")
	}
	compile := func(file, obj string) Step {
		args := append([]string(nil), cflags...)
		// A C++ driver would compile parser.c as C++.
		if tool == toolchain.CXXCompiler && filepath.Ext(file) == ".c" {
			args = append(args, "-x", "c")
		}
		return Step{Tool: tool, Args: append(args, file, "-o", obj)}
	}

	steps := []Step{compile(parser, "parser.o")}
	if scanner != "" {
		steps = append(steps, compile(scanner, "scanner.o"))
	}
	steps = append(steps, Step{
		Tool:           tool,
		Args:           []string{"-shared", "-o", ArtifactName(src.Lang, goos), objectGlob},
		ImplicitInputs: true,
	})
	return steps, nil
}
