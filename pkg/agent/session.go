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
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jeremyhahn/go-agentclient/internal/i18n"
	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
)

// DefaultConnectTimeout bounds the connect retries after an autostart.
const DefaultConnectTimeout = 5 * time.Second

// Dialer opens a raw stream to the agent. The session reads the greeting
// itself.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// SessionOptions are sent to the agent as OPTION lines after connecting so
// that pinentry appears on the right display in the right language.
type SessionOptions struct {
	LCCtype    string
	LCMessages string
	TTYName    string
	TTYType    string
	Display    string
}

func (o SessionOptions) lines() []string {
	var lines []string
	add := func(name, value string) {
		if value != "" {
			lines = append(lines, "OPTION "+name+"="+value)
		}
	}
	add("display", o.Display)
	add("ttyname", o.TTYName)
	add("ttytype", o.TTYType)
	add("lc-ctype", o.LCCtype)
	add("lc-messages", o.LCMessages)
	return lines
}

// Translator renders localized user facing messages.
type Translator interface {
	Translate(id string, data map[string]any) string
}

// Session owns the connection to the agent. The connection is opened on
// first use and reused afterwards; a connection left out of sync by an
// aborted transaction is dropped and reopened on the next operation.
//
// Operations on a Session are serialized: Do holds the session lock for
// the whole command sequence so that concurrent callers never interleave
// their transactions.
type Session struct {
	socketPath     string
	dialer         Dialer
	autostart      bool
	launcher       Launcher
	connectTimeout time.Duration
	options        SessionOptions
	pinentryNotify bool
	debugIPC       bool
	log            logger.Logger
	state          *ProcessState
	tr             Translator

	mu   sync.Mutex
	conn *assuan.Conn
	seen bool
}

func newSession(cfg *Config) *Session {
	s := &Session{
		socketPath:     cfg.SocketPath,
		dialer:         cfg.Dialer,
		autostart:      cfg.Autostart,
		launcher:       cfg.Launcher,
		connectTimeout: cfg.ConnectTimeout,
		options:        cfg.Options,
		pinentryNotify: cfg.UI != nil,
		debugIPC:       cfg.DebugIPC,
		log:            cfg.Logger,
		state:          cfg.State,
		tr:             cfg.Translator,
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = DefaultConnectTimeout
	}
	if s.log == nil {
		s.log = logger.NoOp{}
	}
	if s.state == nil {
		s.state = DefaultProcessState()
	}
	if s.tr == nil {
		s.tr = i18n.Default()
	}
	if s.socketPath == "" && s.dialer == nil {
		s.socketPath = DefaultSocketPath("")
	}
	if s.autostart && s.launcher == nil {
		s.launcher = &CommandLauncher{}
	}
	return s
}

// Do runs fn with a live connection while holding the session lock.
func (s *Session) Do(ctx context.Context, fn func(conn *assuan.Conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	return fn(conn)
}

// AgentSeen reports whether the session ever reached the agent.
func (s *Session) AgentSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

// Close drops the connection. The next operation reconnects.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// acquire must be called with s.mu held.
func (s *Session) acquire(ctx context.Context) (*assuan.Conn, error) {
	if s.conn != nil && !s.conn.Closed() {
		return s.conn, nil
	}
	s.conn = nil

	conn, err := s.dial(ctx)
	if err != nil {
		metrics.RecordConnect(metrics.StatusError)
		if !s.autostart {
			if s.state.markNoAgentWarned() {
				s.log.Info(s.tr.Translate(i18n.MsgNoAgent, nil))
			}
			return nil, fmt.Errorf("%w: %w", ErrAgentUnavailable, err)
		}
		conn, err = s.launch(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		metrics.RecordConnect(metrics.StatusSuccess)
	}

	if err := s.setOptions(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, mapError(err)
	}
	s.conn = conn
	s.seen = true
	return conn, nil
}

func (s *Session) dial(ctx context.Context) (*assuan.Conn, error) {
	opts := []assuan.Option{
		assuan.WithLogger(s.log),
		assuan.WithDebug(s.debugIPC),
	}
	if s.dialer == nil {
		return assuan.Dial(ctx, s.socketPath, opts...)
	}
	rwc, err := s.dialer(ctx)
	if err != nil {
		return nil, err
	}
	return assuan.NewConn(ctx, rwc, opts...)
}

// launch starts the agent and waits for it to accept connections.
func (s *Session) launch(ctx context.Context) (*assuan.Conn, error) {
	if err := s.launcher.Launch(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAgentUnavailable, err)
	}
	metrics.RecordAutostart()
	s.log.Info(s.tr.Translate(i18n.MsgAgentLaunched, nil))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = s.connectTimeout

	var conn *assuan.Conn
	err := backoff.Retry(func() error {
		c, err := s.dial(ctx)
		if err != nil {
			metrics.RecordConnect(metrics.StatusError)
			var se *assuan.ServerError
			if errors.As(err, &se) || errors.Is(err, assuan.ErrInvalidGreeting) {
				return backoff.Permanent(err)
			}
			return err
		}
		metrics.RecordConnect(metrics.StatusSuccess)
		conn = c
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAgentUnavailable, err)
	}
	return conn, nil
}

// setOptions sends the session environment. Options the agent rejects
// are logged and skipped.
func (s *Session) setOptions(ctx context.Context, conn *assuan.Conn) error {
	lines := s.options.lines()
	if s.pinentryNotify {
		lines = append(lines, "OPTION allow-pinentry-notify")
	}
	for _, line := range lines {
		err := conn.Transact(ctx, &assuan.Transaction{Command: line})
		var se *assuan.ServerError
		if errors.As(err, &se) {
			s.log.Warn(s.tr.Translate(i18n.MsgOptionRejected, map[string]any{"Option": line[len("OPTION "):]}),
				logger.Error(err))
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
