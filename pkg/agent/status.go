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
	"strings"
)

// KeyPairInfo is one KEYPAIRINFO record of a smartcard.
type KeyPairInfo struct {
	Keygrip string
	KeyID   string
}

// String returns the record in the agent's "<keygrip> <keyid>" form.
func (k KeyPairInfo) String() string {
	if k.KeyID == "" {
		return k.Keygrip
	}
	return k.Keygrip + " " + k.KeyID
}

// RootCAFlags is the trust information the agent reports for a root
// certificate. Valid is only set after a successful ISTRUSTED query.
type RootCAFlags struct {
	Relax      bool
	ChainModel bool
	Valid      bool
}

// leadingKeyword returns the remainder of line after keyword when line
// consists of keyword alone or keyword followed by white space. Leading
// white space of the remainder is removed.
func leadingKeyword(line, keyword string) (string, bool) {
	if !strings.HasPrefix(line, keyword) {
		return "", false
	}
	rest := line[len(keyword):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimLeft(rest, " \t"), true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// parseSerialNo extracts the leading run of hex digits of a SERIALNO
// status line.
func parseSerialNo(line string) (string, bool) {
	rest, ok := leadingKeyword(line, "SERIALNO")
	if !ok {
		return "", false
	}
	i := 0
	for i < len(rest) && isHexDigit(rest[i]) {
		i++
	}
	if i == 0 {
		return "", false
	}
	return rest[:i], true
}

// parseKeyPairInfo extracts the keygrip and key ID of a KEYPAIRINFO status
// line. Fields after the second are dropped so that format extensions do
// not leak into the result.
func parseKeyPairInfo(line string) (KeyPairInfo, bool) {
	rest, ok := leadingKeyword(line, "KEYPAIRINFO")
	if !ok {
		return KeyPairInfo{}, false
	}
	fields := strings.Fields(rest)
	switch len(fields) {
	case 0:
		return KeyPairInfo{}, false
	case 1:
		return KeyPairInfo{Keygrip: fields[0]}, true
	default:
		return KeyPairInfo{Keygrip: fields[0], KeyID: fields[1]}, true
	}
}

// parseTrustListFlag applies a TRUSTLISTFLAG status line to flags.
// Unknown flags are ignored.
func parseTrustListFlag(line string, flags *RootCAFlags) {
	rest, ok := leadingKeyword(line, "TRUSTLISTFLAG")
	if !ok {
		return
	}
	if _, ok := leadingKeyword(rest, "relax"); ok {
		flags.Relax = true
	} else if _, ok := leadingKeyword(rest, "cm"); ok {
		flags.ChainModel = true
	}
}

// parseKeyInfoSerial extracts the card serial number from a KEYINFO
// status line of the form "KEYINFO <keygrip> T <serialno> ...". Lines for
// keys not stored on a card yield false.
func parseKeyInfoSerial(line string) (string, bool) {
	rest, ok := leadingKeyword(line, "KEYINFO")
	if !ok {
		return "", false
	}
	_, after, ok := strings.Cut(rest, " ")
	if !ok {
		return "", false
	}
	after, ok = strings.CutPrefix(after, "T ")
	if !ok || after == "" {
		return "", false
	}
	serial, _, _ := strings.Cut(after, " ")
	if serial == "" {
		return "", false
	}
	return serial, true
}

// parseProgress returns the text of a PROGRESS status line.
func parseProgress(line string) (string, bool) {
	return leadingKeyword(line, "PROGRESS")
}

// validSerial rejects serial numbers that could inject fields or lines
// into output built from them.
func validSerial(s string) bool {
	return !strings.ContainsAny(s, ":\n\r")
}
