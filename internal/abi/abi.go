// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package abi reads the ABI number a grammar declares in its generated parser.
//
// The generated parser source is the only trusted declaration: tags and
// release metadata are not kept in sync with it.
package abi

import (
	"regexp"
	"strconv"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// Marker is the constant holding the ABI number in parser.c.
const Marker = "LANGUAGE_VERSION"

var markerRE = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*define[ \t]+` + Marker + `[ \t]+(\S+)`)

// Extract returns the ABI number declared in a parser.c content.
func Extract(content []byte) (int, error) {
	m := markerRE.FindSubmatch(content)
	if m == nil {
		return 0, grammarerr.New(grammarerr.Parse, "%s not declared", Marker)
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil || n < 0 {
		return 0, grammarerr.New(grammarerr.Parse, "%s is not a number: %q", Marker, m[1])
	}
	return n, nil
}
