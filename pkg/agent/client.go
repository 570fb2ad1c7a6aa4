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

// Package agent is a client for gpg-agent. It delegates every operation
// that touches private keys, passphrases or smartcards to the agent so that
// secrets never enter the calling process.
//
// A Client owns one Session, which connects lazily and serializes all
// operations. Each operation is a fixed sequence of protocol commands:
//
//	client, err := agent.NewClient(&agent.Config{Autostart: true})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	sig, err := client.Sign(ctx, keygrip, "", digest, agent.DigestSHA256)
//
// Errors are reported through the sentinel values in errors.go and can be
// matched with errors.Is. ERR replies from the agent additionally unwrap to
// *assuan.ServerError.
package agent

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-agentclient/internal/i18n"
	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
	"github.com/jeremyhahn/go-agentclient/pkg/password"
)

// CertStore receives the certificates read from a smartcard.
type CertStore interface {
	// BasicCheck validates cert. It returns an error matching
	// ErrMissingIssuer when only the issuer certificate is unavailable.
	BasicCheck(ctx context.Context, cert *x509.Certificate) error

	// Store adds cert and reports whether it was already present.
	Store(ctx context.Context, cert *x509.Certificate) (existed bool, err error)
}

// UI relays agent notifications to the user interface.
type UI interface {
	// PinentryLaunched is called when the agent started a pinentry. The
	// argument is the inquiry text following the keyword.
	PinentryLaunched(ctx context.Context, info string) error
}

// ProgressSink receives PROGRESS status text. Returning an error cancels
// the running operation.
type ProgressSink interface {
	Progress(ctx context.Context, info string) error
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(ctx context.Context, info string) error

// Progress calls f.
func (f ProgressFunc) Progress(ctx context.Context, info string) error {
	return f(ctx, info)
}

// Config configures a Client.
type Config struct {
	// SocketPath is the agent socket. DefaultSocketPath is used when both
	// SocketPath and Dialer are empty.
	SocketPath string

	// Dialer replaces socket dialing, for tests and custom transports
	Dialer Dialer

	// Autostart launches the agent when it cannot be reached
	Autostart bool

	// Launcher starts the agent; defaults to CommandLauncher
	Launcher Launcher

	// ConnectTimeout bounds connect retries after an autostart
	ConnectTimeout time.Duration

	// Options are sent as OPTION lines on every new connection
	Options SessionOptions

	// DebugIPC traces every protocol line at debug level
	DebugIPC bool

	Logger     logger.Logger
	State      *ProcessState
	Translator Translator

	// CertStore receives certificates learned from a card
	CertStore CertStore

	// UI receives pinentry notifications. Setting it enables the
	// allow-pinentry-notify option.
	UI UI

	// Progress receives PROGRESS status lines
	Progress ProgressSink

	// Passphrase answers passphrase inquiries in batch mode
	Passphrase password.Source
}

// Client performs agent operations.
type Client struct {
	session    *Session
	log        logger.Logger
	tr         Translator
	certs      CertStore
	ui         UI
	progress   ProgressSink
	passphrase password.Source
}

// NewClient creates a client. No connection is made until the first
// operation.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ConnectTimeout < 0 {
		return nil, fmt.Errorf("%w: negative connect timeout", ErrInvalidArgument)
	}
	c := &Client{
		session:    newSession(cfg),
		log:        cfg.Logger,
		tr:         cfg.Translator,
		certs:      cfg.CertStore,
		ui:         cfg.UI,
		progress:   cfg.Progress,
		passphrase: cfg.Passphrase,
	}
	if c.log == nil {
		c.log = logger.NoOp{}
	}
	if c.tr == nil {
		c.tr = i18n.Default()
	}
	return c, nil
}

// Session returns the client's session.
func (c *Client) Session() *Session {
	return c.session
}

// AgentSeen reports whether the agent has been reached at least once.
func (c *Client) AgentSeen() bool {
	return c.session.AgentSeen()
}

// Close closes the agent connection.
func (c *Client) Close() error {
	return c.session.Close()
}

// run executes fn on the session and records logging and metrics for op.
func (c *Client) run(ctx context.Context, op string, fn func(ctx context.Context, conn *assuan.Conn) error) error {
	ctx = logger.WithOperationID(ctx, uuid.NewString())
	start := time.Now()
	c.log.DebugContext(ctx, "agent operation started", logger.String("op", op))

	err := c.session.Do(ctx, func(conn *assuan.Conn) error {
		return fn(ctx, conn)
	})
	err = mapError(err)

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		metrics.RecordError(op, errorType(err))
		c.log.DebugContext(ctx, "agent operation failed", logger.String("op", op), logger.Error(err))
	}
	metrics.RecordOperation(op, status, time.Since(start).Seconds())
	return err
}

// reject records a request refused before contacting the agent.
func (c *Client) reject(op string, err error) error {
	metrics.RecordError(op, errorType(err))
	metrics.RecordOperation(op, metrics.StatusError, 0)
	return err
}

// simple runs a command that returns no data. Inquiries get the default
// handling.
func (c *Client) simple(ctx context.Context, conn *assuan.Conn, command string) error {
	return conn.Transact(ctx, &assuan.Transaction{
		Command: command,
		Inquire: c.inquirer("", nil),
	})
}

// setKeyDesc sends SETKEYDESC when desc is not empty.
func (c *Client) setKeyDesc(ctx context.Context, conn *assuan.Conn, desc string) error {
	if desc == "" {
		return nil
	}
	return c.simple(ctx, conn, keyDescLine(desc))
}

func keyDescLine(desc string) string {
	return "SETKEYDESC " + assuan.EscapePlus(desc)
}

// checkLines fails with ErrInvalidValue when a command line would not fit.
func checkLines(lines ...string) error {
	for _, l := range lines {
		if len(l) > assuan.MaxLineLength {
			return ErrInvalidValue
		}
	}
	return nil
}
