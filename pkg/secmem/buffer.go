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

// Package secmem provides growable byte buffers for passphrases and key
// material. Buffer memory is locked into RAM where the platform allows it
// and is overwritten with zeros whenever it is released.
package secmem

import (
	"errors"
	"runtime"
)

// MaxSize bounds the size of a single secure buffer.
const MaxSize = 1 << 20

var (
	// ErrOutOfMemory is returned when a write would grow the buffer past MaxSize.
	ErrOutOfMemory = errors.New("secmem: secure buffer size limit exceeded")

	// ErrDestroyed is returned when writing to a destroyed buffer.
	ErrDestroyed = errors.New("secmem: buffer destroyed")
)

// Buffer is an io.Writer that keeps its contents in locked memory.
//
// A Buffer must be released with Destroy, typically via defer right after
// it is created, so that its contents are zeroed on every exit path.
// Buffers are not safe for concurrent use.
type Buffer struct {
	buf       []byte
	locked    bool
	destroyed bool
}

// New allocates a buffer with the given initial capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 64
	}
	if capacity > MaxSize {
		capacity = MaxSize
	}
	b := &Buffer{}
	b.buf, b.locked = alloc(capacity)
	return b
}

// Write appends p, growing the buffer when needed. The old backing array
// is wiped before it is dropped.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.destroyed {
		return 0, ErrDestroyed
	}
	need := len(b.buf) + len(p)
	if need > MaxSize {
		return 0, ErrOutOfMemory
	}
	if need > cap(b.buf) {
		newCap := 2 * cap(b.buf)
		if newCap < need {
			newCap = need
		}
		if newCap > MaxSize {
			newCap = MaxSize
		}
		grown, locked := alloc(newCap)
		grown = append(grown, b.buf...)
		release(b.buf, b.locked)
		b.buf, b.locked = grown, locked
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// Bytes returns the buffer contents. The slice aliases the secure memory
// and is only valid until the next Write, Reset or Destroy.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Locked reports whether the backing memory is locked into RAM.
func (b *Buffer) Locked() bool {
	return b.locked
}

// Reset zeroes the contents and empties the buffer, keeping its memory.
func (b *Buffer) Reset() {
	Wipe(b.buf[:cap(b.buf)])
	b.buf = b.buf[:0]
}

// Destroy zeroes and unlocks the backing memory. It is safe to call more
// than once.
func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	release(b.buf, b.locked)
	b.buf = nil
	b.locked = false
	b.destroyed = true
}

// Wipe overwrites p with zeros.
func Wipe(p []byte) {
	clear(p)
	runtime.KeepAlive(p)
}

func alloc(capacity int) ([]byte, bool) {
	buf := make([]byte, 0, capacity)
	return buf, lock(buf[:capacity]) == nil
}

func release(buf []byte, locked bool) {
	full := buf[:cap(buf)]
	Wipe(full)
	if locked {
		_ = unlock(full)
	}
}
