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

import (
	"fmt"

	"github.com/jeremyhahn/go-agentclient/pkg/crypto/wrapping"
	"github.com/jeremyhahn/go-agentclient/pkg/password"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

// WrapForImport pads and wraps a private key S-expression with the key
// returned by KEYWRAP_KEY --import. The result is the IMPORT_KEY payload.
func WrapForImport(kek, key []byte) ([]byte, error) {
	if err := sexp.ValidateExact(key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	padded := wrapping.Pad(key)
	defer password.Zero(padded)
	return wrapping.Wrap(kek, padded)
}

// UnwrapExport reverses the wrapping the agent applies to EXPORT_KEY
// results and returns the bare key S-expression without padding.
func UnwrapExport(kek, blob []byte) ([]byte, error) {
	plain, err := wrapping.Unwrap(kek, blob)
	if err != nil {
		return nil, err
	}
	n, err := sexp.Validate(plain)
	if err != nil {
		password.Zero(plain)
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	password.Zero(plain[n:])
	return plain[:n], nil
}
