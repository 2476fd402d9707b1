// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package toolchain maps the logical tools a build asks for to the programs
// that run them.
//
// A build never names a compiler binary directly. It asks for CCompiler or
// CXXCompiler (or one of their conventional aliases) and the Resolver in use
// decides what runs: the program found on PATH, or a registered substitute
// such as "zig cc".
package toolchain

import (
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// Logical tool names.
const (
	CCompiler   = "c-compiler"
	CXXCompiler = "c++-compiler"
)

var aliases = map[string]string{
	"cc":      CCompiler,
	"gcc":     CCompiler,
	"clang":   CCompiler,
	"c++":     CXXCompiler,
	"g++":     CXXCompiler,
	"clang++": CXXCompiler,
}

// defaultProgram is the program Passthrough looks up for a logical name.
var defaultProgram = map[string]string{
	CCompiler:   "cc",
	CXXCompiler: "c++",
}

// Canonical returns the logical name for name. Names that are neither
// logical names nor known aliases are returned unchanged.
func Canonical(name string) string {
	if logical, ok := aliases[name]; ok {
		return logical
	}
	return name
}

// Tool is a resolved invocation prefix. Args are placed before the
// arguments of every invocation.
type Tool struct {
	Name    string // logical name
	Program string
	Args    []string
}

// Command returns the full argument vector for invoking t with args.
func (t Tool) Command(args ...string) []string {
	cmd := make([]string, 0, 1+len(t.Args)+len(args))
	cmd = append(cmd, t.Program)
	cmd = append(cmd, t.Args...)
	return append(cmd, args...)
}

func (t Tool) String() string {
	return strings.Join(t.Command(), " ")
}

// Resolver resolves tool names.
type Resolver interface {
	// Resolve returns the tool to run for name.
	Resolve(name string) (Tool, error)
	// Substituted reports whether name is served by a substitute rather than
	// the default program.
	Substituted(name string) bool
}

// -----------------------------------------------------------------------------

// Passthrough resolves every name to the program found on PATH.
type Passthrough struct {
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

func (p Passthrough) Resolve(name string) (Tool, error) {
	logical := Canonical(name)
	program := name
	if def, ok := defaultProgram[name]; ok {
		program = def
	}
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(program)
	if err != nil {
		return Tool{}, grammarerr.Wrap(grammarerr.ToolNotFound, err, "%s: %s not found", logical, program)
	}
	return Tool{Name: logical, Program: path}, nil
}

func (Passthrough) Substituted(string) bool { return false }

// -----------------------------------------------------------------------------

// Substitute serves registered logical names with a replacement command line
// and defers everything else to a fallback resolver.
type Substitute struct {
	fallback Resolver

	mu    sync.RWMutex
	table map[string]Tool
}

// NewSubstitute returns a Substitute deferring to fallback, or to
// Passthrough if fallback is nil.
func NewSubstitute(fallback Resolver) *Substitute {
	if fallback == nil {
		fallback = Passthrough{}
	}
	return &Substitute{fallback: fallback, table: make(map[string]Tool)}
}

// Register serves name, and every alias of it, with cmdline. The command
// line is split with shell quoting rules: "zig cc -target x86_64-windows".
func (s *Substitute) Register(name, cmdline string) error {
	words, err := shellwords.Parse(cmdline)
	if err != nil {
		return grammarerr.Wrap(grammarerr.InvalidConfig, err, "substitute %s", name)
	}
	if len(words) == 0 {
		return grammarerr.New(grammarerr.InvalidConfig, "substitute %s: empty command", name)
	}
	logical := Canonical(name)
	s.mu.Lock()
	s.table[logical] = Tool{Name: logical, Program: words[0], Args: words[1:]}
	s.mu.Unlock()
	return nil
}

// Names returns the registered logical names in sorted order.
func (s *Substitute) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.table))
	for name := range s.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Substitute) Resolve(name string) (Tool, error) {
	s.mu.RLock()
	t, ok := s.table[Canonical(name)]
	s.mu.RUnlock()
	if !ok {
		return s.fallback.Resolve(name)
	}
	t.Args = append([]string(nil), t.Args...)
	return t, nil
}

func (s *Substitute) Substituted(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.table[Canonical(name)]
	return ok
}

// FromTable returns a Substitute registering every entry of table, or
// Passthrough when table is empty.
func FromTable(table map[string]string) (Resolver, error) {
	if len(table) == 0 {
		return Passthrough{}, nil
	}
	s := NewSubstitute(nil)
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.Register(name, table[name]); err != nil {
			return nil, err
		}
	}
	return s, nil
}
