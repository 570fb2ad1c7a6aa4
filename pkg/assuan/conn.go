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

// Package assuan implements the client side of the line oriented IPC
// protocol spoken by gpg-agent.
//
// A transaction sends one command line and then reads server lines until
// OK or ERR. In between the server may send D lines carrying result data,
// END marking the end of a data block, S status lines, INQUIRE lines asking
// the client for more data, and # comments. Conn drives that loop and hands
// each kind of line to the callbacks of a Transaction.
package assuan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
)

const (
	// LineLength is the size of the protocol line buffer, including the
	// terminating LF.
	LineLength = 1002

	// MaxLineLength is the longest line that may be sent, excluding LF.
	MaxLineLength = 1000

	// confidentialMarker replaces secret payloads in debug output.
	confidentialMarker = "[confidential data not shown]"
)

// StatusFunc receives an S line without the leading "S ". Returning an
// error aborts the transaction with that error.
type StatusFunc func(ctx context.Context, line string) error

// InquireFunc answers an INQUIRE line, given without the leading
// "INQUIRE ". Data written to w is sent back as D lines followed by END.
// Returning an error cancels the inquiry and aborts the transaction.
type InquireFunc func(ctx context.Context, line string, w *InquiryWriter) error

// Transaction describes one command exchange.
type Transaction struct {
	// Command is the command line, without LF
	Command string

	// Data receives the decoded payload of D lines. A D line arriving
	// while Data is nil is a protocol error.
	Data io.Writer

	// End is called for every END line. It lets callers split the data
	// stream into blocks.
	End func() error

	// Inquire answers INQUIRE lines. When nil every inquiry is cancelled.
	Inquire InquireFunc

	// Status receives S lines.
	Status StatusFunc

	// SecretResult hides received D lines from the debug trace.
	SecretResult bool
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDebug enables tracing of every line sent and received.
func WithDebug(enabled bool) Option {
	return func(c *Conn) {
		c.debug = enabled
	}
}

// Conn is a client connection to an Assuan server. At most one
// transaction may be in progress at a time; a concurrent call fails with
// ErrBusy instead of interleaving lines on the wire.
type Conn struct {
	rwc      io.ReadWriteCloser
	lr       *lineReader
	log      logger.Logger
	debug    bool
	greeting string

	busy      atomic.Bool
	closed    atomic.Bool
	opened    bool
	closeOnce sync.Once
	closeErr  error
	scratch   []byte
}

// NewConn wraps an established stream and consumes the server greeting.
// The stream is closed when the greeting is not an OK line.
func NewConn(ctx context.Context, rwc io.ReadWriteCloser, opts ...Option) (*Conn, error) {
	c := &Conn{
		rwc:     rwc,
		lr:      newLineReader(rwc),
		log:     logger.NoOp{},
		scratch: make([]byte, 0, LineLength),
	}
	for _, opt := range opts {
		opt(c)
	}

	stop := c.watch(ctx)
	err := c.readGreeting(ctx)
	if !stop() && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.opened = true
	metrics.SessionOpened()
	return c, nil
}

func (c *Conn) readGreeting(ctx context.Context) error {
	for {
		line, err := c.lr.readLine()
		if err != nil {
			return fmt.Errorf("assuan: reading greeting: %w", err)
		}
		c.trace(ctx, "<- ", line, false)
		switch {
		case isComment(line):
			continue
		case hasKeyword(line, "OK"):
			c.greeting = string(bytes.TrimSpace(line[2:]))
			return nil
		case hasKeyword(line, "ERR"):
			return parseServerError(string(bytes.TrimSpace(line[3:])))
		default:
			return fmt.Errorf("%w: %q", ErrInvalidGreeting, line)
		}
	}
}

// Greeting returns the text following OK in the server greeting.
func (c *Conn) Greeting() string {
	return c.greeting
}

// Closed reports whether the connection has been closed, either
// explicitly or after a failed transaction left it out of sync.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close closes the underlying stream and wipes the receive buffer.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.rwc.Close()
		c.lr.wipe()
		clear(c.scratch[:cap(c.scratch)])
		if c.opened {
			metrics.SessionClosed()
		}
	})
	return c.closeErr
}

// Transact runs a transaction and returns nil when the server replied OK.
// An ERR reply is returned as *ServerError and leaves the connection
// usable. Any other failure, including context cancellation and callback
// errors, closes the connection because the protocol state is lost.
func (c *Conn) Transact(ctx context.Context, tx *Transaction) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := checkLine(tx.Command); err != nil {
		return err
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	stop := c.watch(ctx)
	err := c.transact(ctx, tx)
	if !stop() && ctx.Err() != nil {
		err = ctx.Err()
	}

	var se *ServerError
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		if !errors.As(err, &se) {
			_ = c.Close()
		}
	}
	metrics.RecordTransaction(commandName(tx.Command), status)
	return err
}

func (c *Conn) transact(ctx context.Context, tx *Transaction) error {
	if err := c.writeLine(ctx, []byte(tx.Command), false); err != nil {
		return err
	}

	for {
		line, err := c.lr.readLine()
		if err != nil {
			return fmt.Errorf("assuan: reading reply: %w", err)
		}

		switch {
		case hasKeyword(line, "D"):
			c.trace(ctx, "<- ", line, tx.SecretResult)
			if tx.Data == nil {
				return fmt.Errorf("%w: unexpected data line", ErrProtocol)
			}
			if len(line) < 2 {
				continue
			}
			data := unescapeInPlace(line[2:])
			_, err := tx.Data.Write(data)
			clear(data)
			if err != nil {
				return err
			}

		case hasKeyword(line, "END"):
			c.trace(ctx, "<- ", line, false)
			if tx.End != nil {
				if err := tx.End(); err != nil {
					return err
				}
			}

		case hasKeyword(line, "S"):
			c.trace(ctx, "<- ", line, false)
			status := string(bytes.TrimLeft(line[1:], " "))
			metrics.RecordStatusLine(firstWord(status))
			if tx.Status != nil {
				if err := tx.Status(ctx, status); err != nil {
					return err
				}
			}

		case hasKeyword(line, "INQUIRE"):
			c.trace(ctx, "<- ", line, false)
			if err := c.inquire(ctx, tx, string(bytes.TrimLeft(line[7:], " "))); err != nil {
				return err
			}

		case hasKeyword(line, "OK"):
			c.trace(ctx, "<- ", line, false)
			return nil

		case hasKeyword(line, "ERR"):
			c.trace(ctx, "<- ", line, false)
			return parseServerError(string(bytes.TrimSpace(line[3:])))

		case isComment(line):
			c.trace(ctx, "<- ", line, false)

		default:
			c.trace(ctx, "<- ", line, false)
			return fmt.Errorf("%w: unexpected line %q", ErrProtocol, truncate(line))
		}
	}
}

func (c *Conn) inquire(ctx context.Context, tx *Transaction, line string) error {
	keyword := firstWord(line)
	if tx.Inquire == nil {
		metrics.RecordInquiry(keyword, false)
		return c.writeLine(ctx, []byte("CAN"), false)
	}

	w := &InquiryWriter{conn: c, ctx: ctx}
	defer w.wipe()
	if err := tx.Inquire(ctx, line, w); err != nil {
		metrics.RecordInquiry(keyword, false)
		_ = c.writeLine(ctx, []byte("CAN"), false)
		return err
	}
	if err := w.flush(); err != nil {
		return err
	}
	metrics.RecordInquiry(keyword, w.n > 0)
	return c.writeLine(ctx, []byte("END"), false)
}

// writeLine sends line followed by LF.
func (c *Conn) writeLine(ctx context.Context, line []byte, confidential bool) error {
	if len(line) > MaxLineLength {
		return ErrLineTooLong
	}
	c.trace(ctx, "-> ", line, confidential)
	buf := append(c.scratch[:0], line...)
	buf = append(buf, '\n')
	_, err := c.rwc.Write(buf)
	if confidential {
		clear(buf)
	}
	c.scratch = buf[:0]
	if err != nil {
		return fmt.Errorf("assuan: writing line: %w", err)
	}
	return nil
}

func (c *Conn) trace(ctx context.Context, dir string, line []byte, confidential bool) {
	if !c.debug {
		return
	}
	if confidential && len(line) > 2 {
		c.log.DebugContext(ctx, "assuan", logger.String("line", dir+string(line[:2])+confidentialMarker))
		return
	}
	c.log.DebugContext(ctx, "assuan", logger.String("line", dir+string(line)))
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// watch arranges for blocked I/O to fail once ctx is done. The returned
// function detaches the watcher and reports whether it had not fired yet.
func (c *Conn) watch(ctx context.Context) func() bool {
	if ctx.Done() == nil {
		return func() bool { return true }
	}
	return context.AfterFunc(ctx, func() {
		if d, ok := c.rwc.(deadliner); ok {
			_ = d.SetDeadline(time.Unix(1, 0))
			return
		}
		c.closed.Store(true)
		_ = c.rwc.Close()
	})
}

// checkLine validates a command line before anything is written.
func checkLine(line string) error {
	if len(line) > MaxLineLength {
		return fmt.Errorf("%w: %d bytes", ErrLineTooLong, len(line))
	}
	if strings.ContainsAny(line, "\r\n") {
		return ErrInvalidLine
	}
	return nil
}

// hasKeyword reports whether line is exactly kw or starts with kw and a space.
func hasKeyword(line []byte, kw string) bool {
	if !bytes.HasPrefix(line, []byte(kw)) {
		return false
	}
	return len(line) == len(kw) || line[len(kw)] == ' '
}

func isComment(line []byte) bool {
	return len(line) > 0 && line[0] == '#'
}

func firstWord(s string) string {
	w, _, _ := strings.Cut(s, " ")
	return w
}

// commandName returns the command word used as metrics label. Card
// commands keep their SCD prefix.
func commandName(line string) string {
	w := firstWord(line)
	if w == "SCD" {
		return "SCD " + firstWord(strings.TrimLeft(line[3:], " "))
	}
	return w
}

func truncate(line []byte) []byte {
	if len(line) > 40 {
		return line[:40]
	}
	return line
}
