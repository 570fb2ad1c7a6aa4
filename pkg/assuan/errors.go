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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrLineTooLong is returned when a command line exceeds MaxLineLength
	ErrLineTooLong = errors.New("assuan: line too long")

	// ErrInvalidLine is returned when a command line contains CR or LF
	ErrInvalidLine = errors.New("assuan: line contains line break")

	// ErrBusy is returned when a transaction is already in progress
	ErrBusy = errors.New("assuan: transaction already in progress")

	// ErrClosed is returned when the connection has been closed
	ErrClosed = errors.New("assuan: connection closed")

	// ErrProtocol is returned for replies that violate the protocol
	ErrProtocol = errors.New("assuan: protocol violation")

	// ErrInvalidGreeting is returned when the server does not greet with OK
	ErrInvalidGreeting = errors.New("assuan: invalid server greeting")

	// ErrPipeUnsupported is returned when dialing a named pipe off Windows
	ErrPipeUnsupported = errors.New("assuan: named pipes are not supported on this platform")

	// ErrInvalidNonceFile is returned for a malformed socket emulation file
	ErrInvalidNonceFile = errors.New("assuan: invalid socket emulation file")
)

// Error codes carried in ERR replies (libgpg-error numbering).
const (
	CodeGeneral         = 1
	CodeDigestAlgo      = 5
	CodeNoPublicKey     = 9
	CodeNoSecretKey     = 17
	CodeNotFound        = 27
	CodeInvalidArgument = 45
	CodeInvalidValue    = 55
	CodeMissingCert     = 57
	CodeNoData          = 58
	CodeInternal        = 63
	CodeNoAgent         = 77
	CodeInvalidSexp     = 83
	CodeNotTrusted      = 98
	CodeCanceled        = 99
	CodeAmbiguousName   = 107
	CodeNotConfirmed    = 114
	CodeFullyCanceled   = 198
	CodeAssuanCanceled  = 277
)

// Error sources carried in ERR replies.
const (
	SourceUnknown  = 0
	SourceGPGSM    = 3
	SourceGPGAgent = 4
	SourcePinentry = 5
	SourceSCD      = 6
)

// ServerError is an ERR reply sent by the server.
type ServerError struct {
	// Code is the error code without its source bits
	Code int

	// Source identifies the component that raised the error
	Source int

	// Description is the human readable text following the number
	Description string
}

func (e *ServerError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("assuan: server error %d", e.Code)
	}
	return fmt.Sprintf("assuan: server error %d: %s", e.Code, e.Description)
}

// parseServerError decodes the text following "ERR ".
func parseServerError(rest string) *ServerError {
	num, desc, _ := strings.Cut(rest, " ")
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return &ServerError{Code: CodeGeneral, Description: rest}
	}
	return &ServerError{
		Code:        int(n & 0xffff),
		Source:      int((n >> 24) & 0x7f),
		Description: desc,
	}
}

// IsCode reports whether err is a ServerError with the given code.
func IsCode(err error, code int) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Code == code
}
