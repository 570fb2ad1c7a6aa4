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

// Package password provides secret value handling for passphrases and
// PINs passed to the agent.
//
// Secrets are held as byte slices that can be zeroed once no longer
// needed. Source implementations supply passphrases non-interactively,
// for example in batch mode where the agent inquires for a passphrase
// instead of launching pinentry.
package password

import (
	"crypto/subtle"
	"errors"
	"sync"
)

var (
	// ErrEmptyPassword is returned when an empty password is provided.
	ErrEmptyPassword = errors.New("password: password cannot be empty")

	// ErrPasswordZeroed is returned when the password has been zeroed.
	ErrPasswordZeroed = errors.New("password: password has been zeroed")
)

// Secret is a passphrase or PIN held in memory.
type Secret interface {
	// String returns the secret as a string
	String() (string, error)

	// Bytes returns a copy of the secret, or nil once cleared
	Bytes() []byte

	// Clear zeroes the secret
	Clear()
}

// ClearPassword stores a password in memory as cleartext.
//
// While stored in cleartext, the password data can be securely zeroed
// when no longer needed.
type ClearPassword struct {
	mu       sync.Mutex
	password []byte
}

// NewClearPassword creates a new cleartext password stored in memory.
//
// The provided byte slice is copied to prevent external modification.
// Returns an error if the password is empty.
func NewClearPassword(password []byte) (*ClearPassword, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	p := make([]byte, len(password))
	copy(p, password)
	return &ClearPassword{password: p}, nil
}

// Empty returns a password holding zero bytes. It is distinct from a
// cleared password: String returns "" without error.
func Empty() *ClearPassword {
	return &ClearPassword{password: []byte{}}
}

// NewClearPasswordFromString creates a new cleartext password from a string.
func NewClearPasswordFromString(password string) (*ClearPassword, error) {
	return NewClearPassword([]byte(password))
}

// String returns the password as a string.
//
// Note: strings cannot be zeroed. Prefer Bytes where possible.
func (p *ClearPassword) String() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.password == nil {
		return "", ErrPasswordZeroed
	}
	return string(p.password), nil
}

// Bytes returns a copy of the password.
func (p *ClearPassword) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.password == nil {
		return nil
	}
	result := make([]byte, len(p.password))
	copy(result, p.password)
	return result
}

// Len returns the password length in bytes.
func (p *ClearPassword) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.password)
}

// Clear securely clears the password from memory. It is irreversible.
func (p *ClearPassword) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.password != nil {
		Zero(p.password)
		p.password = nil
	}
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// keep the stores from being optimized away
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

// Equal compares two passwords in constant time.
func Equal(a, b Secret) (bool, error) {
	aBytes := a.Bytes()
	if aBytes == nil {
		return false, ErrPasswordZeroed
	}
	defer Zero(aBytes)

	bBytes := b.Bytes()
	if bBytes == nil {
		return false, ErrPasswordZeroed
	}
	defer Zero(bBytes)

	return subtle.ConstantTimeCompare(aBytes, bBytes) == 1, nil
}

var _ Secret = (*ClearPassword)(nil)
