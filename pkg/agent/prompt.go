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
	"strings"

	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
	"github.com/jeremyhahn/go-agentclient/pkg/password"
	"github.com/jeremyhahn/go-agentclient/pkg/secmem"
)

// GetConfirmation shows desc to the user through the agent's pinentry and
// returns nil when the user confirmed. A declined prompt yields an error
// matching ErrCancelled.
func (c *Client) GetConfirmation(ctx context.Context, desc string) error {
	command := "GET_CONFIRMATION " + assuan.EscapePlus(desc)
	if err := checkLines(command); err != nil {
		return c.reject(metrics.OpGetConfirmation, err)
	}
	return c.run(ctx, metrics.OpGetConfirmation, func(ctx context.Context, conn *assuan.Conn) error {
		return conn.Transact(ctx, &assuan.Transaction{
			Command: command,
			Inquire: c.inquirer("", nil),
		})
	})
}

// AskPassphrase asks the agent to prompt the user for a passphrase. With
// repeat set the user has to enter it twice and the agent checks its
// quality. The caller owns the returned password and should Clear it.
func (c *Client) AskPassphrase(ctx context.Context, desc string, repeat bool) (*password.ClearPassword, error) {
	var sb strings.Builder
	sb.WriteString("GET_PASSPHRASE --data")
	if repeat {
		sb.WriteString(" --repeat=1 --check --qualitybar")
	}
	sb.WriteString(" -- X X X ")
	sb.WriteString(assuan.EscapePlus(desc))
	command := sb.String()
	if err := checkLines(command); err != nil {
		return nil, c.reject(metrics.OpAskPassphrase, err)
	}

	var pass *password.ClearPassword
	err := c.run(ctx, metrics.OpAskPassphrase, func(ctx context.Context, conn *assuan.Conn) error {
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
			pass = password.Empty()
			return nil
		}
		pass, err = password.NewClearPassword(buf.Bytes())
		return err
	})
	if err != nil {
		return nil, err
	}
	return pass, nil
}

// Nop sends NOP to check that the agent is alive.
func (c *Client) Nop(ctx context.Context) error {
	return c.run(ctx, metrics.OpNop, func(ctx context.Context, conn *assuan.Conn) error {
		return c.simple(ctx, conn, "NOP")
	})
}

// Version returns the version string of the running agent.
func (c *Client) Version(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	err := c.run(ctx, metrics.OpVersion, func(ctx context.Context, conn *assuan.Conn) error {
		buf.Reset()
		return conn.Transact(ctx, &assuan.Transaction{
			Command: "GETINFO version",
			Data:    &buf,
			Inquire: c.inquirer("", nil),
		})
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
