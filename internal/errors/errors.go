// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errors defines the typed failures returned by grammar resolution,
// builds and installs.
//
// Every failure carries a Code. Callers match codes with the standard
// errors.Is:
//
//	if errors.Is(err, grammarerr.ExhaustedSearch) {
//	    // widen the search bounds or pin a revision
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	// Network is a transport failure talking to a remote. Callers may retry.
	Network Code = "NETWORK_ERROR"
	// RepoNotFound means the remote repository or ref does not exist.
	RepoNotFound Code = "REPO_NOT_FOUND"
	// NotFoundAtCommit means a file is absent from a commit.
	NotFoundAtCommit Code = "NOT_FOUND_AT_COMMIT"
	// Parse means the ABI marker is missing or not numeric.
	Parse Code = "PARSE_ERROR"
	// AbiIncompatible means a pinned revision declares an ABI above the ceiling.
	AbiIncompatible Code = "ABI_INCOMPATIBLE"
	// ExhaustedSearch means no compatible commit was found within the search bounds.
	ExhaustedSearch Code = "EXHAUSTED_SEARCH"
	// Compile means a compiler or linker exited non-zero.
	Compile Code = "COMPILE_ERROR"
	// CyclicDependency means a recipe depends on itself.
	CyclicDependency Code = "CYCLIC_DEPENDENCY"
	// ArtifactMissing signals that a language is not installed yet.
	// It drives install short-circuiting and is never returned to users.
	ArtifactMissing Code = "ARTIFACT_MISSING"
	// ToolNotFound means no program could be found for a toolchain request.
	ToolNotFound Code = "TOOL_NOT_FOUND"
	// UnknownRecipe means no recipe is defined for a language id.
	UnknownRecipe Code = "UNKNOWN_RECIPE"
	// InvalidConfig means the configuration could not be used.
	InvalidConfig Code = "INVALID_CONFIG"
)

// Error implements error so a bare Code can be used as an errors.Is target.
func (c Code) Error() string { return string(c) }

// Error is a failure with a code and the language it concerns.
type Error struct {
	Code    Code
	Lang    string   // language id, empty when not known yet
	Message string   // human readable detail
	Output  string   // captured process output, set for Compile
	Chain   []string // offending chain, set for CyclicDependency
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Lang != "" {
		b.WriteString(" [")
		b.WriteString(e.Lang)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.Output != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(e.Output, "\n"))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the same code, or an *Error with the same code.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Code:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return false
}

// New returns an error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error with the given code wrapping cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithLang attaches a language id to err. Typed errors that already name a
// language are returned unchanged; other errors keep their code, if any.
func WithLang(lang string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Lang != "" {
			return err
		}
		cp := *e
		cp.Lang = lang
		return &cp
	}
	return &Error{Code: CodeOf(err), Lang: lang, Cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, code)
}
