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

import "context"

// maxDataLine is the longest D line payload after escaping.
const maxDataLine = MaxLineLength - 2

// InquiryWriter sends the answer to an INQUIRE line as a sequence of D
// lines. Payloads are escaped and split so that no line exceeds
// MaxLineLength. It is only valid during the InquireFunc call.
type InquiryWriter struct {
	conn *Conn
	ctx  context.Context
	line []byte
	n    int

	confidential bool
}

// Write queues p for sending.
func (w *InquiryWriter) Write(p []byte) (int, error) {
	return w.write(p, false)
}

// WriteString queues s for sending.
func (w *InquiryWriter) WriteString(s string) (int, error) {
	return w.write([]byte(s), false)
}

// WriteConfidential sends p with tracing suppressed. Buffers holding the
// escaped copy are zeroed once the lines are written.
func (w *InquiryWriter) WriteConfidential(p []byte) (int, error) {
	if err := w.flush(); err != nil {
		return 0, err
	}
	n, err := w.write(p, true)
	if err != nil {
		return n, err
	}
	return n, w.flush()
}

func (w *InquiryWriter) write(p []byte, confidential bool) (int, error) {
	if w.line == nil {
		w.line = make([]byte, 0, MaxLineLength)
		w.line = append(w.line, 'D', ' ')
	}
	w.confidential = w.confidential || confidential
	for i, c := range p {
		width := 1
		if needsEscape(c) {
			width = 3
		}
		if len(w.line)-2+width > maxDataLine {
			if err := w.flush(); err != nil {
				return i, err
			}
			w.confidential = confidential
		}
		w.line = appendEscaped(w.line, c)
	}
	w.n += len(p)
	return len(p), nil
}

// flush sends the pending D line, if any.
func (w *InquiryWriter) flush() error {
	if len(w.line) <= 2 {
		return nil
	}
	err := w.conn.writeLine(w.ctx, w.line, w.confidential)
	if w.confidential {
		clear(w.line)
		w.line = append(w.line[:0], 'D', ' ')
	} else {
		w.line = w.line[:2]
	}
	w.confidential = false
	return err
}

func (w *InquiryWriter) wipe() {
	clear(w.line[:cap(w.line)])
	w.line = nil
}
