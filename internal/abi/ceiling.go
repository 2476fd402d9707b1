// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package abi

import (
	"strings"

	"golang.org/x/mod/semver"

	grammarerr "github.com/goplus/tsgrammar/internal/errors"
)

// hostCeilings lists, newest first, the lowest host version shipping each ceiling.
// Builds linked against a different runtime library may accept another
// ceiling; an explicit ceiling always takes precedence.
var hostCeilings = []struct {
	since   string
	ceiling int
}{
	{"v30.1.0", 15},
	{"v29.1.0", 14},
}

// CeilingFor returns the default ABI ceiling of a host editor version such
// as "29.4" or "v30.1".
func CeilingFor(hostVersion string) (int, error) {
	v := hostVersion
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return 0, grammarerr.New(grammarerr.InvalidConfig, "invalid host version %q", hostVersion)
	}
	for _, hc := range hostCeilings {
		if semver.Compare(v, hc.since) >= 0 {
			return hc.ceiling, nil
		}
	}
	return 0, grammarerr.New(grammarerr.InvalidConfig, "host version %s predates grammar support", hostVersion)
}
