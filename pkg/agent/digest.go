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
	"crypto"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/ripemd160"
)

// DigestAlgorithm identifies a hash algorithm by its libgcrypt number, the
// numbering used on the wire by SETHASH.
type DigestAlgorithm int

const (
	DigestMD5    DigestAlgorithm = 1
	DigestSHA1   DigestAlgorithm = 2
	DigestRMD160 DigestAlgorithm = 3
	DigestSHA256 DigestAlgorithm = 8
	DigestSHA384 DigestAlgorithm = 9
	DigestSHA512 DigestAlgorithm = 10
	DigestSHA224 DigestAlgorithm = 11
)

var digestNames = map[DigestAlgorithm]string{
	DigestMD5:    "md5",
	DigestSHA1:   "sha1",
	DigestRMD160: "rmd160",
	DigestSHA256: "sha256",
	DigestSHA384: "sha384",
	DigestSHA512: "sha512",
	DigestSHA224: "sha224",
}

// String returns the lower case algorithm name.
func (a DigestAlgorithm) String() string {
	if name, ok := digestNames[a]; ok {
		return name
	}
	return fmt.Sprintf("digest(%d)", int(a))
}

// Valid reports whether a is a known algorithm.
func (a DigestAlgorithm) Valid() bool {
	_, ok := digestNames[a]
	return ok
}

// Size returns the digest length in bytes, or 0 for unknown algorithms.
func (a DigestAlgorithm) Size() int {
	switch a {
	case DigestMD5:
		return md5.Size
	case DigestSHA1, DigestRMD160:
		return 20
	case DigestSHA224:
		return sha256.Size224
	case DigestSHA256:
		return sha256.Size
	case DigestSHA384:
		return sha512.Size384
	case DigestSHA512:
		return sha512.Size
	}
	return 0
}

// New returns a hash computing a, or nil for unknown algorithms.
func (a DigestAlgorithm) New() hash.Hash {
	switch a {
	case DigestMD5:
		return md5.New()
	case DigestSHA1:
		return sha1.New()
	case DigestRMD160:
		return ripemd160.New()
	case DigestSHA224:
		return sha256.New224()
	case DigestSHA256:
		return sha256.New()
	case DigestSHA384:
		return sha512.New384()
	case DigestSHA512:
		return sha512.New()
	}
	return nil
}

// cardHashOption returns the --hash option accepted by the card daemon.
// Cards only implement a subset of the algorithms.
func (a DigestAlgorithm) cardHashOption() (string, bool) {
	switch a {
	case DigestSHA1, DigestRMD160, DigestMD5, DigestSHA256:
		return "--hash=" + a.String(), true
	}
	return "", false
}

// ParseDigestAlgorithm maps a name such as "sha256" or "ripemd160" to its
// algorithm.
func ParseDigestAlgorithm(name string) (DigestAlgorithm, error) {
	n := strings.ToLower(strings.ReplaceAll(name, "-", ""))
	if n == "ripemd160" {
		n = "rmd160"
	}
	for a, s := range digestNames {
		if s == n {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedDigestAlgorithm, name)
}

// DigestAlgorithmFromHash maps a crypto.Hash to its algorithm.
func DigestAlgorithmFromHash(h crypto.Hash) (DigestAlgorithm, error) {
	switch h {
	case crypto.MD5:
		return DigestMD5, nil
	case crypto.SHA1:
		return DigestSHA1, nil
	case crypto.RIPEMD160:
		return DigestRMD160, nil
	case crypto.SHA224:
		return DigestSHA224, nil
	case crypto.SHA256:
		return DigestSHA256, nil
	case crypto.SHA384:
		return DigestSHA384, nil
	case crypto.SHA512:
		return DigestSHA512, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnsupportedDigestAlgorithm, h)
}
