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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
	"github.com/jeremyhahn/go-agentclient/pkg/secmem"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

// GenKey asks the agent to generate a key pair described by keyParams, a
// canonical (genkey ...) S-expression, and returns the public key.
func (c *Client) GenKey(ctx context.Context, keyParams []byte) ([]byte, error) {
	n, err := sexp.Validate(keyParams)
	if err != nil {
		return nil, c.reject(metrics.OpGenKey, fmt.Errorf("%w: key parameters: %w", ErrInvalidValue, err))
	}
	keyParams = keyParams[:n]

	var pub []byte
	err = c.run(ctx, metrics.OpGenKey, func(ctx context.Context, conn *assuan.Conn) error {
		if err := c.simple(ctx, conn, "RESET"); err != nil {
			return err
		}
		var buf bytes.Buffer
		err := conn.Transact(ctx, &assuan.Transaction{
			Command: "GENKEY",
			Data:    &buf,
			Inquire: c.inquirer("KEYPARAM", confidential(keyParams)),
			Status:  c.progressStatus,
		})
		if err != nil {
			return err
		}
		pub, err = validatedResult(buf.Bytes())
		return err
	})
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// ReadKey returns the public key for keyRef. When fromCard is false keyRef
// is a keygrip; otherwise it is a card key reference such as "OPENPGP.3"
// and the key is read directly from the card.
func (c *Client) ReadKey(ctx context.Context, keyRef string, fromCard bool) ([]byte, error) {
	command := "READKEY " + keyRef
	if fromCard {
		if err := checkCardKeyRef(keyRef); err != nil {
			return nil, c.reject(metrics.OpReadKey, err)
		}
		command = "SCD " + command
	} else if err := checkKeygrip(keyRef); err != nil {
		return nil, c.reject(metrics.OpReadKey, err)
	}
	if err := checkLines(command); err != nil {
		return nil, c.reject(metrics.OpReadKey, err)
	}

	var pub []byte
	err := c.run(ctx, metrics.OpReadKey, func(ctx context.Context, conn *assuan.Conn) error {
		if err := c.simple(ctx, conn, "RESET"); err != nil {
			return err
		}
		var buf bytes.Buffer
		err := conn.Transact(ctx, &assuan.Transaction{
			Command: command,
			Data:    &buf,
			Inquire: c.inquirer("", nil),
		})
		if err != nil {
			return err
		}
		pub, err = validatedResult(buf.Bytes())
		return err
	})
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// HaveKey reports whether the agent holds the secret key for keygrip.
func (c *Client) HaveKey(ctx context.Context, keygrip string) (bool, error) {
	if err := checkKeygrip(keygrip); err != nil {
		return false, c.reject(metrics.OpHaveKey, err)
	}
	err := c.run(ctx, metrics.OpHaveKey, func(ctx context.Context, conn *assuan.Conn) error {
		return c.simple(ctx, conn, "HAVEKEY "+keygrip)
	})
	if errors.Is(err, ErrNoSecretKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// KeyInfo returns the serial number of the card holding the secret key
// for keygrip, or "" when the key is not stored on a card.
func (c *Client) KeyInfo(ctx context.Context, keygrip string) (string, error) {
	if err := checkKeygrip(keygrip); err != nil {
		return "", c.reject(metrics.OpKeyInfo, err)
	}

	var serial string
	var seen bool
	err := c.run(ctx, metrics.OpKeyInfo, func(ctx context.Context, conn *assuan.Conn) error {
		serial, seen = "", false
		err := conn.Transact(ctx, &assuan.Transaction{
			Command: "KEYINFO " + keygrip,
			Status: func(_ context.Context, line string) error {
				// The first line naming a card serial wins.
				if seen {
					return nil
				}
				serial, seen = parseKeyInfoSerial(line)
				return nil
			},
			Inquire: c.inquirer("", nil),
		})
		if err != nil {
			return err
		}
		if serial != "" && !validSerial(serial) {
			serial = ""
			return fmt.Errorf("%w: serial number contains invalid characters", ErrInvalidValue)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return serial, nil
}

// Passwd asks the agent to change the passphrase of the key identified by
// keygrip. The agent prompts for the old and new passphrase itself.
func (c *Client) Passwd(ctx context.Context, keygrip, desc string) error {
	if err := checkKeygrip(keygrip); err != nil {
		return c.reject(metrics.OpPasswd, err)
	}
	if desc != "" {
		if err := checkLines(keyDescLine(desc)); err != nil {
			return c.reject(metrics.OpPasswd, err)
		}
	}
	return c.run(ctx, metrics.OpPasswd, func(ctx context.Context, conn *assuan.Conn) error {
		if err := c.setKeyDesc(ctx, conn, desc); err != nil {
			return err
		}
		return conn.Transact(ctx, &assuan.Transaction{
			Command: "PASSWD " + keygrip,
			Inquire: c.inquirer("", nil),
		})
	})
}

// KeywrapKey fetches the AES key wrapping key the agent expects for the
// next IMPORT_KEY (forExport false) or applies to EXPORT_KEY results
// (forExport true). The key is bound to the current connection. The
// caller should wipe the returned copy.
func (c *Client) KeywrapKey(ctx context.Context, forExport bool) ([]byte, error) {
	command := "KEYWRAP_KEY --import"
	if forExport {
		command = "KEYWRAP_KEY --export"
	}

	var out []byte
	err := c.run(ctx, metrics.OpKeywrapKey, func(ctx context.Context, conn *assuan.Conn) error {
		buf := secmem.New(64)
		defer buf.Destroy()
		err := conn.Transact(ctx, &assuan.Transaction{
			Command:      command,
			Data:         buf,
			Inquire:      c.inquirer("", nil),
			SecretResult: true,
		})
		if err != nil {
			return err
		}
		if buf.Len() == 0 {
			return ErrNoData
		}
		out = make([]byte, buf.Len())
		copy(out, buf.Bytes())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ImportKey transfers key material into the agent. key is the wrapped key
// blob expected by IMPORT_KEY; it is sent over the confidential channel.
func (c *Client) ImportKey(ctx context.Context, key []byte) error {
	if len(key) == 0 {
		return c.reject(metrics.OpImportKey, fmt.Errorf("%w: empty key", ErrInvalidValue))
	}
	return c.run(ctx, metrics.OpImportKey, func(ctx context.Context, conn *assuan.Conn) error {
		return conn.Transact(ctx, &assuan.Transaction{
			Command: "IMPORT_KEY",
			Inquire: c.inquirer("KEYDATA", confidential(key)),
		})
	})
}

// ExportKey retrieves the secret key identified by keygrip in the agent's
// wrapped export format. desc replaces the passphrase prompt text. The
// result is collected in locked memory and returned as a copy the caller
// should wipe.
func (c *Client) ExportKey(ctx context.Context, keygrip, desc string) ([]byte, error) {
	if err := checkKeygrip(keygrip); err != nil {
		return nil, c.reject(metrics.OpExportKey, err)
	}
	if desc != "" {
		if err := checkLines(keyDescLine(desc)); err != nil {
			return nil, c.reject(metrics.OpExportKey, err)
		}
	}

	var out []byte
	err := c.run(ctx, metrics.OpExportKey, func(ctx context.Context, conn *assuan.Conn) error {
		if err := c.setKeyDesc(ctx, conn, desc); err != nil {
			return err
		}
		buf := secmem.New(1024)
		defer buf.Destroy()
		err := conn.Transact(ctx, &assuan.Transaction{
			Command:      "EXPORT_KEY " + keygrip,
			Data:         buf,
			Inquire:      c.inquirer("", nil),
			SecretResult: true,
		})
		if err != nil {
			return err
		}
		out = make([]byte, buf.Len())
		copy(out, buf.Bytes())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// validatedResult checks that data starts with a canonical S-expression
// and returns exactly that expression.
func validatedResult(data []byte) ([]byte, error) {
	n, err := sexp.Validate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSExpression, err)
	}
	return data[:n], nil
}
