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

package assuan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

const (
	pipePrefix = `\\.\pipe\`
	nonceSize  = 16
)

// Dial connects to the server listening at path and consumes its greeting.
//
// Three kinds of endpoints are recognised: Windows named pipes (paths
// starting with \\.\pipe\), socket emulation files (a regular file holding
// a TCP port and a 16 byte nonce) and Unix domain sockets.
func Dial(ctx context.Context, path string, opts ...Option) (*Conn, error) {
	rwc, err := dialEndpoint(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewConn(ctx, rwc, opts...)
}

func dialEndpoint(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	if strings.HasPrefix(path, pipePrefix) {
		return dialPipe(ctx, path)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("assuan: dial %s: %w", path, err)
	}
	if fi.Mode().IsRegular() {
		return dialEmulated(ctx, path)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("assuan: dial %s: %w", path, err)
	}
	return conn, nil
}

// dialEmulated connects through a socket emulation file. The file holds a
// decimal port, a LF and a nonce which must be the first bytes sent.
func dialEmulated(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("assuan: dial %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	port, nonce, err := ParseNonceFile(io.LimitReader(f, 64))
	if err != nil {
		return nil, err
	}
	defer clear(nonce)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("assuan: dial %s: %w", path, err)
	}
	if _, err := conn.Write(nonce); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("assuan: sending nonce: %w", err)
	}
	return conn, nil
}

// ParseNonceFile decodes the contents of a socket emulation file.
func ParseNonceFile(r io.Reader) (port int, nonce []byte, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, nil, fmt.Errorf("assuan: reading socket file: %w", err)
	}
	defer clear(data)

	head, rest, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return 0, nil, fmt.Errorf("%w: missing port line", ErrInvalidNonceFile)
	}
	port, err = strconv.Atoi(string(bytes.TrimSuffix(head, []byte{'\r'})))
	if err != nil || port < 1 || port > 65535 {
		return 0, nil, fmt.Errorf("%w: invalid port", ErrInvalidNonceFile)
	}
	if len(rest) != nonceSize {
		return 0, nil, fmt.Errorf("%w: nonce must be %d bytes", ErrInvalidNonceFile, nonceSize)
	}
	nonce = make([]byte, nonceSize)
	copy(nonce, rest)
	return port, nonce, nil
}
