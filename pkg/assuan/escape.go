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

package assuan

import "strings"

const hexDigits = "0123456789ABCDEF"

// needsEscape reports whether c must be percent escaped inside a D line.
func needsEscape(c byte) bool {
	return c == '%' || c == '\r' || c == '\n'
}

// appendEscaped appends c to dst, percent escaped when required.
func appendEscaped(dst []byte, c byte) []byte {
	if needsEscape(c) {
		return append(dst, '%', hexDigits[c>>4], hexDigits[c&0x0f])
	}
	return append(dst, c)
}

// unescapeInPlace decodes %XX sequences in p and returns the decoded
// prefix. Malformed sequences are kept verbatim.
func unescapeInPlace(p []byte) []byte {
	j := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '%' && i+2 < len(p) {
			hi, ok1 := fromHex(p[i+1])
			lo, ok2 := fromHex(p[i+2])
			if ok1 && ok2 {
				p[j] = hi<<4 | lo
				j++
				i += 2
				continue
			}
		}
		p[j] = p[i]
		j++
	}
	return p[:j]
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// EscapeLine percent escapes '%', CR and LF so that s can be used as a
// free text argument of a command line.
func EscapeLine(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if needsEscape(c) {
			sb.WriteByte('%')
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0x0f])
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// EscapePlus applies the percent-plus escaping expected by the agent for
// prompt descriptions: '+', '"', '%' and control characters become %XX and
// spaces become '+'.
func EscapePlus(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '+' || c == '"' || c == '%' || c < 0x20:
			sb.WriteByte('%')
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0x0f])
		case c == ' ':
			sb.WriteByte('+')
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// UnescapePlus reverses EscapePlus.
func UnescapePlus(s string) string {
	b := []byte(strings.ReplaceAll(s, "+", " "))
	return string(unescapeInPlace(b))
}
