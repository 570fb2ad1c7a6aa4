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

import "bytes"

var valueTag = []byte("(5:value")

// WrapRawSignature frames the raw signature integer returned by a smartcard
// as an RSA signature value:
//
//	(7:sig-val(3:rsa(1:s<len>:<sig>)))
//
// Only the RSA shape is produced. Cards returning other signature types
// need a protocol extension.
func WrapRawSignature(sig []byte) ([]byte, error) {
	return NewBuilder().
		Open().String("sig-val").
		Open().String("rsa").
		Open().String("s").Atom(sig).Close().
		Close().
		Close().
		Bytes()
}

// ExtractValueField returns the plaintext carried by a decryption result.
//
// Two layouts are accepted: the current "(5:value<len>:<data>)" form, which
// the agent may terminate with NUL bytes, and the legacy bare "<len>:<data>"
// form sent by older agents. The returned slice aliases buf.
func ExtractValueField(buf []byte) ([]byte, error) {
	if len(buf) > 0 && buf[0] == '(' {
		if !bytes.HasPrefix(buf, valueTag) {
			return nil, syntaxError(0, "missing value tag")
		}
		data, end, err := extractAtom(buf, len(valueTag))
		if err != nil {
			return nil, err
		}
		if end >= len(buf) || buf[end] != ')' {
			return nil, syntaxError(end, "missing closing parenthesis")
		}
		for i := end + 1; i < len(buf); i++ {
			if buf[i] != 0 {
				return nil, syntaxError(i, "trailing data after value")
			}
		}
		return data, nil
	}

	data, _, err := extractAtom(buf, 0)
	return data, err
}

// extractAtom reads the atom starting at buf[off] and returns its data and
// the offset just past it.
func extractAtom(buf []byte, off int) ([]byte, int, error) {
	if off >= len(buf) {
		return nil, 0, syntaxError(off, "missing length")
	}
	if buf[off] < '1' || buf[off] > '9' {
		return nil, 0, syntaxError(off, "invalid length")
	}
	n, start, err := parseLength(buf, off)
	if err != nil {
		return nil, 0, err
	}
	return buf[start : start+n], start + n, nil
}
