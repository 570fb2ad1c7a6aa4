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
	"bytes"
	"context"
	"fmt"

	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

// hexLineOverhead is the room reserved for the command word and algorithm
// when a digest is sent hex encoded on one line.
const hexLineOverhead = 50

// Sign creates a signature over digest with the key identified by keygrip.
// desc, when not empty, replaces the agent's passphrase prompt text. The
// result is a canonical S-expression of the form (sig-val ...).
func (c *Client) Sign(ctx context.Context, keygrip, desc string, digest []byte, algo DigestAlgorithm) ([]byte, error) {
	if err := checkKeygrip(keygrip); err != nil {
		return nil, c.reject(metrics.OpSign, err)
	}
	if !algo.Valid() {
		return nil, c.reject(metrics.OpSign, fmt.Errorf("%w: %v", ErrUnsupportedDigestAlgorithm, algo))
	}
	if len(digest) == 0 || 2*len(digest)+hexLineOverhead > assuan.LineLength {
		return nil, c.reject(metrics.OpSign, fmt.Errorf("%w: digest of %d bytes", ErrInvalidValue, len(digest)))
	}
	setHash := fmt.Sprintf("SETHASH %d %s", int(algo), upperHex(digest))
	if desc != "" {
		if err := checkLines(keyDescLine(desc)); err != nil {
			return nil, c.reject(metrics.OpSign, err)
		}
	}

	var sig []byte
	err := c.run(ctx, metrics.OpSign, func(ctx context.Context, conn *assuan.Conn) error {
		if err := c.simple(ctx, conn, "RESET"); err != nil {
			return err
		}
		if err := c.simple(ctx, conn, "SIGKEY "+keygrip); err != nil {
			return err
		}
		if err := c.setKeyDesc(ctx, conn, desc); err != nil {
			return err
		}
		if err := c.simple(ctx, conn, setHash); err != nil {
			return err
		}

		var buf bytes.Buffer
		err := conn.Transact(ctx, &assuan.Transaction{
			Command: "PKSIGN",
			Data:    &buf,
			Inquire: c.inquirer("", nil),
		})
		if err != nil {
			return err
		}
		sig, err = validatedResult(buf.Bytes())
		return err
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// CardSign signs digest directly with a smartcard key, bypassing the
// agent's key store. keyID is a card key reference such as "OPENPGP.3".
// The card returns a raw RSA signature value which is wrapped into a
// (sig-val (rsa (s ...))) S-expression.
func (c *Client) CardSign(ctx context.Context, keyID string, digest []byte, algo DigestAlgorithm) ([]byte, error) {
	hashOpt, ok := algo.cardHashOption()
	if !ok {
		return nil, c.reject(metrics.OpCardSign, fmt.Errorf("%w: %v", ErrUnsupportedDigestAlgorithm, algo))
	}
	if err := checkCardKeyRef(keyID); err != nil {
		return nil, c.reject(metrics.OpCardSign, err)
	}
	if len(digest) == 0 || 2*len(digest)+hexLineOverhead > assuan.LineLength {
		return nil, c.reject(metrics.OpCardSign, fmt.Errorf("%w: digest of %d bytes", ErrInvalidValue, len(digest)))
	}
	pksign := fmt.Sprintf("SCD PKSIGN %s %s", hashOpt, keyID)
	if err := checkLines(pksign); err != nil {
		return nil, c.reject(metrics.OpCardSign, err)
	}

	var sig []byte
	err := c.run(ctx, metrics.OpCardSign, func(ctx context.Context, conn *assuan.Conn) error {
		if err := c.simple(ctx, conn, "SCD SETDATA "+upperHex(digest)); err != nil {
			return err
		}

		var buf bytes.Buffer
		err := conn.Transact(ctx, &assuan.Transaction{
			Command: pksign,
			Data:    &buf,
			Inquire: c.inquirer("", nil),
		})
		if err != nil {
			return err
		}
		wrapped, err := sexp.WrapRawSignature(buf.Bytes())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSExpression, err)
		}
		sig = wrapped
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}
