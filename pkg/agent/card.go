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
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/jeremyhahn/go-agentclient/internal/i18n"
	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
)

// learnProgress is reported before each certificate received while
// learning a card.
const learnProgress = "learncard C 0 0"

// SerialNo returns the serial number of the inserted smartcard.
func (c *Client) SerialNo(ctx context.Context) (string, error) {
	var serial string
	err := c.run(ctx, metrics.OpSerialNo, func(ctx context.Context, conn *assuan.Conn) error {
		err := conn.Transact(ctx, &assuan.Transaction{
			Command: "SCD SERIALNO",
			Inquire: c.inquirer("", nil),
			Status: func(ctx context.Context, line string) error {
				if s, ok := parseSerialNo(line); ok {
					serial = s
					return nil
				}
				return c.progressStatus(ctx, line)
			},
		})
		if err != nil {
			return err
		}
		if serial == "" {
			return ErrNoData
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return serial, nil
}

// KeyPairInfo returns the key pairs stored on the inserted smartcard in
// the order the card reports them.
func (c *Client) KeyPairInfo(ctx context.Context) ([]KeyPairInfo, error) {
	var list []KeyPairInfo
	err := c.run(ctx, metrics.OpKeyPairInfo, func(ctx context.Context, conn *assuan.Conn) error {
		list = list[:0]
		err := conn.Transact(ctx, &assuan.Transaction{
			Command: "SCD LEARN --force",
			Inquire: c.inquirer("", nil),
			Status: func(ctx context.Context, line string) error {
				if info, ok := parseKeyPairInfo(line); ok {
					list = append(list, info)
					return nil
				}
				return c.progressStatus(ctx, line)
			},
		})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return ErrNoData
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// LearnResult summarizes the certificates received by Learn.
type LearnResult struct {
	Imported int
	Existing int
	Skipped  int

	// Errors collects the failures of individual certificates. They do
	// not fail the Learn call.
	Errors *multierror.Error
}

// Err returns the collected certificate errors, or nil.
func (r *LearnResult) Err() error {
	return r.Errors.ErrorOrNil()
}

// Learn asks the agent to read the inserted smartcard and send the
// certificates it holds. Each certificate is checked and handed to the
// configured CertStore.
func (c *Client) Learn(ctx context.Context) (*LearnResult, error) {
	if c.certs == nil {
		return nil, c.reject(metrics.OpLearn, fmt.Errorf("%w: no certificate store configured", ErrInvalidArgument))
	}

	var result *LearnResult
	err := c.run(ctx, metrics.OpLearn, func(ctx context.Context, conn *assuan.Conn) error {
		result = &LearnResult{}
		var buf bytes.Buffer
		return conn.Transact(ctx, &assuan.Transaction{
			Command: "LEARN --send",
			Data:    &buf,
			End: func() error {
				defer buf.Reset()
				if err := c.reportProgress(ctx, learnProgress); err != nil {
					return err
				}
				c.learnCertificate(ctx, buf.Bytes(), result)
				return nil
			},
			Status:  c.progressStatus,
			Inquire: c.inquirer("", nil),
		})
	})
	return result, err
}

// learnCertificate parses, checks and stores one DER certificate.
func (c *Client) learnCertificate(ctx context.Context, der []byte, result *LearnResult) {
	skip := func(msg string, err error) {
		c.log.Error(c.tr.Translate(msg, map[string]any{"Error": err.Error()}))
		result.Skipped++
		result.Errors = multierror.Append(result.Errors, err)
		metrics.RecordCertificate(metrics.ResultSkipped)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		skip(i18n.MsgCertParseFailed, err)
		return
	}
	if err := c.certs.BasicCheck(ctx, cert); err != nil && !errors.Is(err, ErrMissingIssuer) {
		skip(i18n.MsgCertInvalid, err)
		return
	}

	existed, err := c.certs.Store(ctx, cert)
	if err != nil {
		skip(i18n.MsgCertInvalid, err)
		return
	}
	subject := logger.String("subject", cert.Subject.String())
	if existed {
		result.Existing++
		c.log.Info(c.tr.Translate(i18n.MsgCertExisting, nil), subject)
		metrics.RecordCertificate(metrics.ResultExisting)
		return
	}
	result.Imported++
	c.log.Info(c.tr.Translate(i18n.MsgCertImported, nil), subject)
	metrics.RecordCertificate(metrics.ResultImported)
}
