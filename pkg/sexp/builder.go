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
	"math/big"
	"strconv"
)

// Builder assembles a canonical S-expression into an owned growable buffer.
//
// Methods are chainable. The first error encountered is latched and
// returned by Bytes; later calls become no-ops.
//
//	out, err := sexp.NewBuilder().
//		Open().String("sig-val").
//		Open().String("rsa").
//		Open().String("s").Atom(sig).Close().
//		Close().Close().Bytes()
type Builder struct {
	buf   []byte
	depth int
	err   error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{buf: make([]byte, 0, 64)}
}

// Open starts a new list.
func (b *Builder) Open() *Builder {
	if b.err != nil {
		return b
	}
	if b.depth == 0 && len(b.buf) > 0 {
		b.err = ErrUnbalanced
		return b
	}
	b.buf = append(b.buf, '(')
	b.depth++
	return b
}

// Close ends the innermost open list.
func (b *Builder) Close() *Builder {
	if b.err != nil {
		return b
	}
	if b.depth == 0 {
		b.err = ErrUnbalanced
		return b
	}
	b.buf = append(b.buf, ')')
	b.depth--
	return b
}

// Atom appends p as a length-prefixed atom.
func (b *Builder) Atom(p []byte) *Builder {
	if b.err != nil {
		return b
	}
	if b.depth == 0 {
		b.err = ErrAtomOutsideList
		return b
	}
	if len(p) == 0 {
		b.err = ErrEmptyAtom
		return b
	}
	b.buf = strconv.AppendInt(b.buf, int64(len(p)), 10)
	b.buf = append(b.buf, ':')
	b.buf = append(b.buf, p...)
	return b
}

// String appends s as an atom.
func (b *Builder) String(s string) *Builder {
	return b.Atom([]byte(s))
}

// Int appends v as an unsigned big-endian integer atom. A leading zero
// octet is added when the most significant bit is set so that the value
// is not read back as negative.
func (b *Builder) Int(v *big.Int) *Builder {
	if b.err != nil {
		return b
	}
	if v == nil || v.Sign() < 0 {
		b.err = syntaxError(len(b.buf), "integer must be non-negative")
		return b
	}
	raw := v.Bytes()
	if len(raw) == 0 {
		raw = []byte{0}
	} else if raw[0]&0x80 != 0 {
		raw = append([]byte{0}, raw...)
	}
	return b.Atom(raw)
}

// Append copies an existing canonical expression into the current list.
// The expression is validated first.
func (b *Builder) Append(expr []byte) *Builder {
	if b.err != nil {
		return b
	}
	if b.depth == 0 {
		b.err = ErrAtomOutsideList
		return b
	}
	if err := ValidateExact(expr); err != nil {
		b.err = err
		return b
	}
	b.buf = append(b.buf, expr...)
	return b
}

// Err returns the first error recorded by the builder.
func (b *Builder) Err() error {
	return b.err
}

// Bytes returns a copy of the finished expression. It fails when an earlier
// call recorded an error, when lists remain open, or when nothing was built.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.depth != 0 || len(b.buf) == 0 {
		return nil, ErrUnbalanced
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, nil
}

// Wipe overwrites the internal buffer with zeros and resets the builder.
// Use it after building expressions that carry key material.
func (b *Builder) Wipe() {
	full := b.buf[:cap(b.buf)]
	for i := range full {
		full[i] = 0
	}
	b.buf = b.buf[:0]
	b.depth = 0
	b.err = nil
}
