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

package wrapping

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// Test vectors from RFC 3394 section 4.
func TestWrap_KnownAnswers(t *testing.T) {
	tests := []struct {
		name       string
		kek        string
		plaintext  string
		ciphertext string
	}{
		{
			name:       "128 bit KEK, 128 bit data",
			kek:        "000102030405060708090A0B0C0D0E0F",
			plaintext:  "00112233445566778899AABBCCDDEEFF",
			ciphertext: "1FA68B0A8112B447 AEF34BD8FB5A7B82 9D3E862371D2CFE5",
		},
		{
			name:       "256 bit KEK, 256 bit data",
			kek:        "000102030405060708090A0B0C0D0E0F101112131415161718191A1B1C1D1E1F",
			plaintext:  "00112233445566778899AABBCCDDEEFF000102030405060708090A0B0C0D0E0F",
			ciphertext: "28C9F404C4B810F4 CBCCB35CFB87F826 3F5786E2D80ED326 CBC7F0E71A99F43B FB988B9B7A02DD21",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kek := unhex(t, tt.kek)
			out, err := Wrap(kek, unhex(t, tt.plaintext))
			require.NoError(t, err)
			assert.Equal(t, unhex(t, tt.ciphertext), out)

			back, err := Unwrap(kek, out)
			require.NoError(t, err)
			assert.Equal(t, unhex(t, tt.plaintext), back)
		})
	}
}

func TestUnwrap_Tampered(t *testing.T) {
	kek := bytes.Repeat([]byte{0x11}, 16)
	out, err := Wrap(kek, Pad([]byte("(3:abc)")))
	require.NoError(t, err)

	out[len(out)-1] ^= 0x01
	_, err = Unwrap(kek, out)
	assert.ErrorIs(t, err, ErrIntegrity)

	out[len(out)-1] ^= 0x01
	_, err = Unwrap(bytes.Repeat([]byte{0x22}, 16), out)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestWrap_InvalidInputs(t *testing.T) {
	kek := make([]byte, 16)

	_, err := Wrap(make([]byte, 15), make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKEK)

	_, err = Wrap(kek, make([]byte, 8))
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = Wrap(kek, make([]byte, 17))
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = Unwrap(kek, make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = Unwrap(kek, make([]byte, 25))
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestPad(t *testing.T) {
	assert.Len(t, Pad(nil), 16)
	assert.Len(t, Pad(make([]byte, 16)), 16)
	assert.Len(t, Pad(make([]byte, 17)), 24)

	p := Pad([]byte("abc"))
	assert.Equal(t, []byte("abc"), p[:3])
	assert.Equal(t, make([]byte, 13), p[3:])
}
