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

// Package wrapping implements the AES key wrap algorithm (RFC 3394) used
// by the agent to protect key material in transit for IMPORT_KEY and
// EXPORT_KEY.
package wrapping

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrInvalidKEK    = errors.New("wrapping: AES key must be 16, 24, or 32 bytes")
	ErrInvalidLength = errors.New("wrapping: input must be a multiple of 8 bytes")
	ErrIntegrity     = errors.New("wrapping: integrity check failed")
)

// defaultIV is the RFC 3394 initial value.
var defaultIV = []byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// Pad extends plaintext with zero bytes to a multiple of 8 and at least
// 16 bytes, the smallest input Wrap accepts. Canonical S-expressions are
// self delimiting, so the receiver ignores the padding.
func Pad(plaintext []byte) []byte {
	n := (len(plaintext) + 7) / 8 * 8
	if n < 16 {
		n = 16
	}
	out := make([]byte, n)
	copy(out, plaintext)
	return out
}

// Wrap wraps plaintext under kek. The plaintext must be at least 16 bytes
// and a multiple of 8; see Pad.
func Wrap(kek, plaintext []byte) ([]byte, error) {
	if len(plaintext) < 16 || len(plaintext)%8 != 0 {
		return nil, ErrInvalidLength
	}
	block, err := newCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(plaintext) / 8
	out := make([]byte, (n+1)*8)
	a := out[:8]
	copy(a, defaultIV)
	copy(out[8:], plaintext)

	b := make([]byte, 16)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			// B = E(K, A || R[i])
			r := out[i*8 : (i+1)*8]
			copy(b[:8], a)
			copy(b[8:], r)
			block.Encrypt(b, b)

			// A = MSB(64, B) ^ t, R[i] = LSB(64, B)
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(a, binary.BigEndian.Uint64(b[:8])^t)
			copy(r, b[8:])
		}
	}
	clear(b)
	return out, nil
}

// Unwrap reverses Wrap and verifies the integrity value.
func Unwrap(kek, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 || len(ciphertext)%8 != 0 {
		return nil, ErrInvalidLength
	}
	block, err := newCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(ciphertext)/8 - 1
	a := make([]byte, 8)
	copy(a, ciphertext[:8])
	plaintext := make([]byte, n*8)
	copy(plaintext, ciphertext[8:])

	b := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			// B = D(K, (A ^ t) || R[i])
			r := plaintext[(i-1)*8 : i*8]
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(b[:8], binary.BigEndian.Uint64(a)^t)
			copy(b[8:], r)
			block.Decrypt(b, b)

			copy(a, b[:8])
			copy(r, b[8:])
		}
	}
	clear(b)

	if subtle.ConstantTimeCompare(a, defaultIV) != 1 {
		clear(plaintext)
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func newCipher(kek []byte) (cipher.Block, error) {
	switch len(kek) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKEK
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return block, nil
}
