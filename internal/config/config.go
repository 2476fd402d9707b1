// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the tsgrammar configuration file.
//
// Example:
//
//	host_version = "30.1"
//
//	[search]
//	initial_depth = 10
//	step = 20
//
//	[substitute]
//	"c-compiler" = "zig cc"
//
//	[[recipe]]
//	lang = "tsx"
//	url = "https://github.com/tree-sitter/tree-sitter-typescript"
//	subpath = "tsx"
//	deps = ["typescript"]
package config

import (
	"errors"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/goplus/tsgrammar/internal/abi"
	grammarerr "github.com/goplus/tsgrammar/internal/errors"
	"github.com/goplus/tsgrammar/internal/recipe"
	"github.com/goplus/tsgrammar/internal/revision"
	"github.com/goplus/tsgrammar/internal/toolchain"
)

// Search overrides the history search bounds. Zero fields keep the defaults.
type Search struct {
	InitialDepth int `toml:"initial_depth"`
	Step         int `toml:"step"`
	MaxAttempts  int `toml:"max_attempts"`
	Workers      int `toml:"workers"`
}

// Config is the content of a configuration file.
type Config struct {
	// Ceiling is the highest ABI the host accepts. It takes precedence
	// over HostVersion.
	Ceiling     int    `toml:"ceiling"`
	HostVersion string `toml:"host_version"`

	Search     Search            `toml:"search"`
	Substitute map[string]string `toml:"substitute"`
	Recipes    []recipe.Entry    `toml:"recipe"`
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, grammarerr.Wrap(grammarerr.InvalidConfig, err, "%s", path)
	}
	return cfg, nil
}

// LoadOptional is like Load but returns an empty configuration when the
// file does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// Parse decodes and validates a configuration. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, grammarerr.New(grammarerr.InvalidConfig, "unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Ceiling < 0 {
		return grammarerr.New(grammarerr.InvalidConfig, "negative ceiling %d", c.Ceiling)
	}
	seen := make(map[string]bool)
	for i, e := range c.Recipes {
		if e.Lang == "" {
			return grammarerr.New(grammarerr.InvalidConfig, "recipe %d: missing lang", i+1)
		}
		if e.URL == "" {
			return grammarerr.New(grammarerr.InvalidConfig, "recipe %s: missing url", e.Lang)
		}
		if seen[e.Lang] {
			return grammarerr.New(grammarerr.InvalidConfig, "recipe %s defined twice", e.Lang)
		}
		seen[e.Lang] = true
	}
	for name, cmdline := range c.Substitute {
		if strings.TrimSpace(cmdline) == "" {
			return grammarerr.New(grammarerr.InvalidConfig, "substitute %s: empty command", name)
		}
	}
	return nil
}

// ABICeiling returns the configured ceiling, or the default ceiling of the
// configured host version.
func (c *Config) ABICeiling() (int, error) {
	if c.Ceiling > 0 {
		return c.Ceiling, nil
	}
	if c.HostVersion != "" {
		return abi.CeilingFor(c.HostVersion)
	}
	return 0, grammarerr.New(grammarerr.InvalidConfig, "no ABI ceiling: set ceiling or host_version")
}

// Bounds returns the search bounds.
func (c *Config) Bounds() revision.Bounds {
	return revision.Bounds{
		InitialDepth: c.Search.InitialDepth,
		Step:         c.Search.Step,
		MaxAttempts:  c.Search.MaxAttempts,
		Workers:      c.Search.Workers,
	}
}

// Tools returns the tool resolver honoring the substitution table.
func (c *Config) Tools() (toolchain.Resolver, error) {
	return toolchain.FromTable(c.Substitute)
}

// RecipeSet returns the configured recipes.
func (c *Config) RecipeSet() recipe.Set {
	rs := make([]recipe.Recipe, len(c.Recipes))
	for i, e := range c.Recipes {
		rs[i] = e.Recipe()
	}
	return recipe.NewSet(rs...)
}

// Langs returns the configured language ids, sorted.
func (c *Config) Langs() []string {
	langs := make([]string, len(c.Recipes))
	for i, e := range c.Recipes {
		langs[i] = e.Lang
	}
	slices.Sort(langs)
	return langs
}
