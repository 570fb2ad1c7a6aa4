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
	"crypto/sha1" //nolint:gosec // certificate fingerprints are SHA-1 by definition
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
)

// Fingerprint returns the SHA-1 fingerprint of cert as uppercase hex.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw) //nolint:gosec
	return upperHex(sum[:])
}

// IsTrusted asks the agent whether a root certificate is in its trust
// list. Exactly one of cert and fingerprint must be given. A certificate
// that is not trusted yields an error matching ErrNotTrusted.
func (c *Client) IsTrusted(ctx context.Context, cert *x509.Certificate, fingerprint string) (RootCAFlags, error) {
	switch {
	case cert != nil && fingerprint != "":
		return RootCAFlags{}, c.reject(metrics.OpIsTrusted,
			fmt.Errorf("%w: certificate and fingerprint are mutually exclusive", ErrInvalidArgument))
	case cert == nil && fingerprint == "":
		return RootCAFlags{}, c.reject(metrics.OpIsTrusted,
			fmt.Errorf("%w: certificate or fingerprint required", ErrInvalidArgument))
	case cert != nil:
		fingerprint = Fingerprint(cert)
	default:
		if err := checkFingerprint(fingerprint); err != nil {
			return RootCAFlags{}, c.reject(metrics.OpIsTrusted, err)
		}
		fingerprint = strings.ToUpper(fingerprint)
	}

	var flags RootCAFlags
	err := c.run(ctx, metrics.OpIsTrusted, func(ctx context.Context, conn *assuan.Conn) error {
		flags = RootCAFlags{}
		err := conn.Transact(ctx, &assuan.Transaction{
			Command: "ISTRUSTED " + fingerprint,
			Status: func(_ context.Context, line string) error {
				parseTrustListFlag(line, &flags)
				return nil
			},
			Inquire: c.inquirer("", nil),
		})
		if err != nil {
			return err
		}
		flags.Valid = true
		return nil
	})
	if err != nil {
		return RootCAFlags{}, err
	}
	return flags, nil
}

// MarkTrusted asks the agent to add a root certificate to its trust list.
// The agent asks the user for confirmation.
func (c *Client) MarkTrusted(ctx context.Context, cert *x509.Certificate) error {
	if cert == nil {
		return c.reject(metrics.OpMarkTrusted, fmt.Errorf("%w: certificate required", ErrInvalidArgument))
	}
	dn := cert.Issuer.String()
	if dn == "" {
		return c.reject(metrics.OpMarkTrusted, fmt.Errorf("%w: certificate has no issuer", ErrGeneral))
	}
	command := fmt.Sprintf("MARKTRUSTED %s S %s", Fingerprint(cert), assuan.EscapeLine(dn))
	if err := checkLines(command); err != nil {
		return c.reject(metrics.OpMarkTrusted, err)
	}

	return c.run(ctx, metrics.OpMarkTrusted, func(ctx context.Context, conn *assuan.Conn) error {
		return conn.Transact(ctx, &assuan.Transaction{
			Command: command,
			Inquire: c.inquirer("", nil),
		})
	})
}
