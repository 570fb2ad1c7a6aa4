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

package agent

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// KeygripLength is the length of a hex encoded keygrip.
const KeygripLength = 40

// checkKeygrip verifies that s is a 40 character hex string.
func checkKeygrip(s string) error {
	if len(s) != KeygripLength {
		return fmt.Errorf("%w: keygrip must be %d hex characters", ErrInvalidValue, KeygripLength)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("%w: keygrip is not hex encoded", ErrInvalidValue)
	}
	return nil
}

// checkCardKeyRef verifies a card relative key reference such as
// "OPENPGP.3" or a hex key ID.
func checkCardKeyRef(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty key reference", ErrInvalidValue)
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] == 0x7f {
			return fmt.Errorf("%w: key reference contains white space or control characters", ErrInvalidValue)
		}
	}
	return nil
}

// checkFingerprint accepts 32 (MD5) or 40 (SHA-1) hex characters.
func checkFingerprint(s string) error {
	if len(s) != 32 && len(s) != 40 {
		return fmt.Errorf("%w: fingerprint must be 32 or 40 hex characters", ErrInvalidValue)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("%w: fingerprint is not hex encoded", ErrInvalidValue)
	}
	return nil
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
