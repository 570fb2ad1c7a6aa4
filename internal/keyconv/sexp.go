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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

// curveNames maps Go curves to the names the agent uses.
var curveNames = map[elliptic.Curve]string{
	elliptic.P256(): "NIST P-256",
	elliptic.P384(): "NIST P-384",
	elliptic.P521(): "NIST P-521",
}

// PrivateKeySExp renders key as a private-key S-expression:
//
//	(private-key(rsa(n)(e)(d)(p)(q)(u)))
//	(private-key(ecc(curve NIST P-256)(q)(d)))
//	(private-key(ecc(curve Ed25519)(flags eddsa)(q)(d)))
func PrivateKeySExp(key crypto.PrivateKey) ([]byte, error) {
	b := sexp.NewBuilder()
	defer b.Wipe()

	b.Open().String("private-key")
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if err := rsaParams(b, k); err != nil {
			return nil, err
		}
	case *ecdsa.PrivateKey:
		if err := ecdsaParams(b, k); err != nil {
			return nil, err
		}
	case ed25519.PrivateKey:
		if len(k) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%w: malformed ed25519 key", ErrUnsupportedKey)
		}
		// Native point encoding uses a 0x40 prefix
		q := append([]byte{0x40}, k.Public().(ed25519.PublicKey)...)
		b.Open().String("ecc").
			Open().String("curve").String("Ed25519").Close().
			Open().String("flags").String("eddsa").Close().
			Open().String("q").Atom(q).Close().
			Open().String("d").Atom(k.Seed()).Close().
			Close()
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	b.Close()
	return b.Bytes()
}

// rsaParams writes the RSA parameters with p < q and u = p^-1 mod q.
func rsaParams(b *sexp.Builder, k *rsa.PrivateKey) error {
	if len(k.Primes) != 2 {
		return fmt.Errorf("%w: multi-prime RSA", ErrUnsupportedKey)
	}
	p, q := k.Primes[0], k.Primes[1]
	if p.Cmp(q) > 0 {
		p, q = q, p
	}
	u := new(big.Int).ModInverse(p, q)
	if u == nil {
		return fmt.Errorf("%w: primes are not coprime", ErrUnsupportedKey)
	}

	b.Open().String("rsa").
		Open().String("n").Int(k.N).Close().
		Open().String("e").Int(big.NewInt(int64(k.E))).Close().
		Open().String("d").Int(k.D).Close().
		Open().String("p").Int(p).Close().
		Open().String("q").Int(q).Close().
		Open().String("u").Int(u).Close().
		Close()
	return nil
}

func ecdsaParams(b *sexp.Builder, k *ecdsa.PrivateKey) error {
	name, ok := curveNames[k.Curve]
	if !ok {
		return fmt.Errorf("%w: curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
	}
	pub, err := k.PublicKey.ECDH()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	d, err := k.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	defer clear(d)

	b.Open().String("ecc").
		Open().String("curve").String(name).Close().
		Open().String("q").Atom(pub.Bytes()).Close().
		Open().String("d").Atom(d).Close().
		Close()
	return nil
}
