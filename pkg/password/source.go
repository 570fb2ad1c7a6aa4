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

package password

// Source supplies a passphrase without user interaction. The boolean is
// false when no passphrase is available, in which case the agent falls
// back to its own pinentry.
type Source interface {
	Passphrase() ([]byte, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() ([]byte, bool)

// Passphrase calls f.
func (f SourceFunc) Passphrase() ([]byte, bool) {
	return f()
}

// Static is a Source returning a fixed passphrase, as used in batch mode.
type Static struct {
	secret *ClearPassword
}

// NewStatic creates a static source. An empty passphrase yields a source
// that never supplies anything.
func NewStatic(passphrase []byte) *Static {
	s := &Static{}
	if p, err := NewClearPassword(passphrase); err == nil {
		s.secret = p
	}
	return s
}

// Passphrase returns a copy of the configured passphrase. The caller
// should Zero it after use.
func (s *Static) Passphrase() ([]byte, bool) {
	if s == nil || s.secret == nil {
		return nil, false
	}
	b := s.secret.Bytes()
	return b, b != nil
}

// Clear zeroes the configured passphrase.
func (s *Static) Clear() {
	if s != nil && s.secret != nil {
		s.secret.Clear()
	}
}

var _ Source = (*Static)(nil)
