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

package keyconv

import "errors"

var (
	// ErrInvalidData is returned for input that is neither PEM nor DER
	// encoded private key material.
	ErrInvalidData = errors.New("keyconv: invalid key data")

	// ErrPasswordRequired is returned for an encrypted key when no
	// password was supplied.
	ErrPasswordRequired = errors.New("keyconv: password required")

	// ErrInvalidPassword is returned when decryption with the supplied
	// password fails.
	ErrInvalidPassword = errors.New("keyconv: invalid password")

	// ErrUnsupportedKey is returned for key types the agent cannot import.
	ErrUnsupportedKey = errors.New("keyconv: unsupported key type")
)
