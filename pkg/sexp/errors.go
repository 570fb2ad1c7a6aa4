// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-agentclient.
//
// go-agentclient is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package sexp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid is returned for any deviation from the canonical encoding.
	// All *SyntaxError values match it with errors.Is.
	ErrInvalid = errors.New("sexp: invalid canonical S-expression")

	// ErrEmptyAtom is returned when a zero-length atom is written. Canonical
	// lengths never start with a zero digit, so empty atoms cannot be encoded.
	ErrEmptyAtom = errors.New("sexp: empty atom")

	// ErrUnbalanced is returned by the Builder when lists are not closed
	// before the expression is finished, or closed without being opened.
	ErrUnbalanced = errors.New("sexp: unbalanced parentheses")

	// ErrAtomOutsideList is returned when an atom is written at the top level.
	ErrAtomOutsideList = errors.New("sexp: atom outside of a list")
)

// SyntaxError describes where and why a buffer failed canonical validation.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sexp: %s at offset %d", e.Reason, e.Offset)
}

// Is reports ErrInvalid so callers can match any syntax failure.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrInvalid
}

func syntaxError(offset int, reason string) error {
	return &SyntaxError{Offset: offset, Reason: reason}
}
