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
	"context"
	"fmt"

	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
	"github.com/jeremyhahn/go-agentclient/pkg/secmem"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

// Decrypt asks the agent to decrypt ciphertext, a canonical (enc-val ...)
// S-expression, with the key identified by keygrip. The ciphertext is sent
// over the confidential channel and the plaintext is collected in locked
// memory; the returned slice is the caller's to wipe.
func (c *Client) Decrypt(ctx context.Context, keygrip, desc string, ciphertext []byte) ([]byte, error) {
	if err := checkKeygrip(keygrip); err != nil {
		return nil, c.reject(metrics.OpDecrypt, err)
	}
	n, err := sexp.Validate(ciphertext)
	if err != nil {
		return nil, c.reject(metrics.OpDecrypt, fmt.Errorf("%w: ciphertext: %w", ErrInvalidValue, err))
	}
	ciphertext = ciphertext[:n]
	if desc != "" {
		if err := checkLines(keyDescLine(desc)); err != nil {
			return nil, c.reject(metrics.OpDecrypt, err)
		}
	}

	var plaintext []byte
	err = c.run(ctx, metrics.OpDecrypt, func(ctx context.Context, conn *assuan.Conn) error {
		if err := c.simple(ctx, conn, "RESET"); err != nil {
			return err
		}
		if err := c.simple(ctx, conn, "SETKEY "+keygrip); err != nil {
			return err
		}
		if err := c.setKeyDesc(ctx, conn, desc); err != nil {
			return err
		}

		buf := secmem.New(1024)
		defer buf.Destroy()
		err := conn.Transact(ctx, &assuan.Transaction{
			Command:      "PKDECRYPT",
			Data:         buf,
			Inquire:      c.inquirer("CIPHERTEXT", confidential(ciphertext)),
			SecretResult: true,
		})
		if err != nil {
			return err
		}
		value, err := sexp.ExtractValueField(buf.Bytes())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSExpression, err)
		}
		plaintext = make([]byte, len(value))
		copy(plaintext, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
