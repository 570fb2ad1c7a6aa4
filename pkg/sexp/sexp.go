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

// Package sexp implements the canonical S-expression encoding used to frame
// keys, signatures, ciphertexts and key parameters exchanged with the agent.
//
// A canonical S-expression obeys the grammar
//
//	sexp  = "(" *( atom / sexp ) ")"
//	atom  = length ":" octets
//
// where length is a decimal number without leading zeros giving the exact
// number of octets that follow the colon. No whitespace, display hints or
// other characters are permitted. Expressions are produced with Builder and
// checked with Validate; nothing else in the module assembles them by hand.
package sexp

// Validate checks that b starts with a complete canonical S-expression and
// returns its length in bytes. Bytes following the expression are not
// examined, so the returned length may be smaller than len(b).
func Validate(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, syntaxError(0, "empty buffer")
	}
	if b[0] != '(' {
		return 0, syntaxError(0, "missing opening parenthesis")
	}

	depth := 0
	i := 0
	for i < len(b) {
		c := b[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
			if depth == 0 {
				return i, nil
			}
		case c == '0':
			return 0, syntaxError(i, "length with leading zero")
		case c >= '1' && c <= '9':
			n, start, err := parseLength(b, i)
			if err != nil {
				return 0, err
			}
			i = start + n
		default:
			return 0, syntaxError(i, "unexpected character")
		}
	}
	return 0, syntaxError(len(b), "truncated expression")
}

// ValidateExact is like Validate but also rejects trailing bytes.
func ValidateExact(b []byte) error {
	n, err := Validate(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return syntaxError(n, "trailing data after expression")
	}
	return nil
}

// parseLength decodes the length prefix starting at b[i] and returns the
// atom length and the offset of its first data byte. The data is verified
// to lie entirely within b.
func parseLength(b []byte, i int) (n int, start int, err error) {
	j := i
	for j < len(b) && b[j] >= '0' && b[j] <= '9' {
		n = n*10 + int(b[j]-'0')
		if n > len(b) {
			return 0, 0, syntaxError(i, "length exceeds buffer")
		}
		j++
	}
	if j == len(b) {
		return 0, 0, syntaxError(j, "truncated length")
	}
	if b[j] != ':' {
		return 0, 0, syntaxError(j, "missing colon after length")
	}
	start = j + 1
	if n > len(b)-start {
		return 0, 0, syntaxError(start, "truncated atom")
	}
	return n, start, nil
}
