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

package cli

import (
	"bufio"
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/jeremyhahn/go-agentclient/internal/i18n"
	"github.com/jeremyhahn/go-agentclient/pkg/password"
)

// readInput reads a file, or standard input for "" and "-".
func (c *Config) readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read standard input: %w", err)
		}
		return data, nil
	}
	// #nosec G304 - input file path from CLI argument
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// readCertificates parses every certificate in a PEM bundle or a single
// DER certificate.
func (c *Config) readCertificates(path string) ([]*x509.Certificate, error) {
	data, err := c.readInput(path)
	if err != nil {
		return nil, err
	}

	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) > 0 {
		return certs, nil
	}

	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return []*x509.Certificate{cert}, nil
}

// readCertificate is readCertificates for commands taking exactly one.
func (c *Config) readCertificate(path string) (*x509.Certificate, error) {
	certs, err := c.readCertificates(path)
	if err != nil {
		return nil, err
	}
	if len(certs) != 1 {
		return nil, fmt.Errorf("expected one certificate, found %d", len(certs))
	}
	return certs[0], nil
}

// readPassphrase prompts for a passphrase on the terminal without echo.
// When standard input is not a terminal a single line is read instead.
func (c *Config) readPassphrase(confirm bool) (*password.ClearPassword, error) {
	f, ok := c.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		line, err := bufio.NewReader(c.stdin).ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		defer password.Zero(line)
		return password.NewClearPassword(trimNewline(line))
	}

	fd := int(f.Fd())
	fmt.Fprint(c.stderr, c.tr.T(i18n.MsgEnterPassphrase))
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(c.stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	defer password.Zero(first)

	if confirm {
		fmt.Fprint(c.stderr, c.tr.T(i18n.MsgConfirmPassphrase))
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(c.stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		defer password.Zero(second)
		if !bytes.Equal(first, second) {
			return nil, errors.New(c.tr.T(i18n.MsgPassphraseMismatch))
		}
	}
	return password.NewClearPassword(first)
}

// trimNewline removes one trailing line ending without copying.
func trimNewline(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}

func (c *Config) printer(cmdOut io.Writer) *Printer {
	return NewPrinter(c.OutputFormat, cmdOut).ForceHex(c.Hex)
}
