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
	"fmt"
	"io"
)

// lineReader splits the server stream into lines. Unlike bufio.Reader its
// buffer can be wiped, which matters because D lines may carry plaintext.
type lineReader struct {
	r     io.Reader
	buf   []byte
	start int
	end   int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r, buf: make([]byte, 2*LineLength)}
}

// readLine returns the next line without its terminating LF. The slice is
// only valid until the next call.
func (lr *lineReader) readLine() ([]byte, error) {
	for {
		if i := bytes.IndexByte(lr.buf[lr.start:lr.end], '\n'); i >= 0 {
			if i > LineLength {
				return nil, fmt.Errorf("%w: received line exceeds %d bytes", ErrProtocol, LineLength)
			}
			line := lr.buf[lr.start : lr.start+i]
			lr.start += i + 1
			return bytes.TrimSuffix(line, []byte{'\r'}), nil
		}
		if lr.end-lr.start > LineLength {
			return nil, fmt.Errorf("%w: received line exceeds %d bytes", ErrProtocol, LineLength)
		}
		if lr.start > 0 {
			n := copy(lr.buf, lr.buf[lr.start:lr.end])
			clear(lr.buf[n:lr.end])
			lr.end = n
			lr.start = 0
		}
		n, err := lr.r.Read(lr.buf[lr.end:])
		lr.end += n
		if err != nil {
			if err == io.EOF && n > 0 {
				continue
			}
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// wipe zeroes the buffer. Pending input is discarded.
func (lr *lineReader) wipe() {
	clear(lr.buf)
	lr.start, lr.end = 0, 0
}
