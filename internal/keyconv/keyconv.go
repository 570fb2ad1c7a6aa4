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

// Package keyconv converts private keys from files into the canonical
// S-expression form the agent stores, and wraps them for IMPORT_KEY.
//
// Supported inputs are PEM or DER encoded PKCS#8 (plain or encrypted),
// PKCS#1 RSA and SEC 1 EC private keys.
package keyconv

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/youmark/pkcs8"

	"github.com/jeremyhahn/go-agentclient/pkg/password"
)

// PEM block types
const (
	pemPKCS8          = "PRIVATE KEY"
	pemEncryptedPKCS8 = "ENCRYPTED PRIVATE KEY"
	pemPKCS1          = "RSA PRIVATE KEY"
	pemSEC1           = "EC PRIVATE KEY"
)

// ParsePrivateKey decodes a private key. data may be PEM or raw DER. pwd
// is only consulted for encrypted PKCS#8 and may be nil otherwise.
func ParsePrivateKey(data []byte, pwd password.Secret) (crypto.PrivateKey, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	der, blockType := data, ""
	if block, _ := pem.Decode(data); block != nil {
		der, blockType = block.Bytes, block.Type
	}

	switch blockType {
	case pemPKCS1:
		key, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
		return key, nil
	case pemSEC1:
		key, err := x509.ParseECPrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
		return key, nil
	case pemEncryptedPKCS8:
		if pwd == nil {
			return nil, ErrPasswordRequired
		}
		return parsePKCS8(der, pwd)
	case pemPKCS8:
		return parsePKCS8(der, nil)
	case "":
		if !isEncryptedPKCS8(der) {
			return parsePKCS8(der, nil)
		}
		if pwd == nil {
			return nil, ErrPasswordRequired
		}
		return parsePKCS8(der, pwd)
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidData, blockType)
	}
}

func parsePKCS8(der []byte, pwd password.Secret) (crypto.PrivateKey, error) {
	var passwordBytes []byte
	if pwd != nil {
		passwordBytes = pwd.Bytes()
		defer password.Zero(passwordBytes)
	}

	key, err := pkcs8.ParsePKCS8PrivateKey(der, passwordBytes)
	if err != nil {
		if pwd != nil && isPasswordError(err) {
			return nil, ErrInvalidPassword
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	switch k := key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

// encryptedPrivateKeyInfo is the outer structure of an encrypted PKCS#8
// key (RFC 5208 section 6).
type encryptedPrivateKeyInfo struct {
	Algo          pkix.AlgorithmIdentifier
	EncryptedData []byte
}

// isEncryptedPKCS8 tells encrypted from plain PKCS#8 in raw DER, where no
// PEM header says which one it is.
func isEncryptedPKCS8(der []byte) bool {
	var info encryptedPrivateKeyInfo
	rest, err := asn1.Unmarshal(der, &info)
	return err == nil && len(rest) == 0
}

// The PKCS8 package doesn't always return "incorrect password";
// sometimes an ASN.1 error is given when it fails to parse the
// decrypted key because the password is wrong.
func isPasswordError(err error) bool {
	msg := err.Error()
	for _, s := range []string{
		"incorrect password",
		"asn1: structure error: tags don't match",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Convert parses a key file and returns the private key S-expression. The
// caller should wipe the result once it has been wrapped.
func Convert(data []byte, pwd password.Secret) ([]byte, error) {
	key, err := ParsePrivateKey(data, pwd)
	if err != nil {
		return nil, err
	}
	return PrivateKeySExp(key)
}
