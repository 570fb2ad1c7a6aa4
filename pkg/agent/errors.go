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

	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/secmem"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

var (
	// ErrAgentUnavailable is returned when no agent could be reached and
	// none could be started
	ErrAgentUnavailable = errors.New("agent: no agent available")

	// ErrInvalidValue is returned for malformed keygrips, digests, key
	// parameters or command lines that would exceed the line limit
	ErrInvalidValue = errors.New("agent: invalid value")

	// ErrInvalidArgument is returned for conflicting or missing arguments
	ErrInvalidArgument = errors.New("agent: invalid argument")

	// ErrInvalidSExpression is returned when the agent sends a malformed
	// canonical S-expression
	ErrInvalidSExpression = errors.New("agent: invalid S-expression")

	// ErrUnsupportedDigestAlgorithm is returned for digest algorithms the
	// operation cannot use
	ErrUnsupportedDigestAlgorithm = errors.New("agent: unsupported digest algorithm")

	// ErrNoData is returned when the agent sent no result
	ErrNoData = errors.New("agent: no data")

	// ErrCancelled is returned when the user or a progress handler
	// cancelled the operation
	ErrCancelled = errors.New("agent: operation cancelled")

	// ErrOutOfMemory is returned when a secure buffer cannot hold the result
	ErrOutOfMemory = errors.New("agent: out of secure memory")

	// ErrProtocol is returned for unexpected replies and transport failures
	ErrProtocol = errors.New("agent: protocol error")

	// ErrNotTrusted is returned when a root certificate is not trusted
	ErrNotTrusted = errors.New("agent: not trusted")

	// ErrNoSecretKey is returned when the agent holds no secret key for a keygrip
	ErrNoSecretKey = errors.New("agent: no secret key")

	// ErrBusy is returned when a transaction is already running on the session
	ErrBusy = errors.New("agent: session busy")

	// ErrGeneral is returned for other agent failures
	ErrGeneral = errors.New("agent: general error")

	// ErrMissingIssuer is returned by certificate stores when the issuer of
	// a certificate is unknown. Learning a card tolerates it.
	ErrMissingIssuer = errors.New("agent: issuer certificate missing")
)

var taxonomy = []error{
	ErrAgentUnavailable, ErrInvalidValue, ErrInvalidArgument, ErrInvalidSExpression,
	ErrUnsupportedDigestAlgorithm, ErrNoData, ErrCancelled, ErrOutOfMemory,
	ErrProtocol, ErrNotTrusted, ErrNoSecretKey, ErrBusy, ErrGeneral,
}

// mapError converts transport and server errors into the package taxonomy.
// The original error stays reachable through errors.As.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se *assuan.ServerError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", serverSentinel(se.Code), err)
	}

	switch {
	case errors.Is(err, assuan.ErrLineTooLong), errors.Is(err, assuan.ErrInvalidLine):
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	case errors.Is(err, assuan.ErrBusy):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, secmem.ErrOutOfMemory):
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	case errors.Is(err, sexp.ErrInvalid), errors.Is(err, sexp.ErrEmptyAtom),
		errors.Is(err, sexp.ErrUnbalanced), errors.Is(err, sexp.ErrAtomOutsideList):
		return fmt.Errorf("%w: %w", ErrInvalidSExpression, err)
	default:
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
}

func serverSentinel(code int) error {
	switch code {
	case assuan.CodeNoAgent:
		return ErrAgentUnavailable
	case assuan.CodeInvalidValue:
		return ErrInvalidValue
	case assuan.CodeInvalidArgument:
		return ErrInvalidArgument
	case assuan.CodeInvalidSexp:
		return ErrInvalidSExpression
	case assuan.CodeDigestAlgo:
		return ErrUnsupportedDigestAlgorithm
	case assuan.CodeNoData:
		return ErrNoData
	case assuan.CodeCanceled, assuan.CodeFullyCanceled, assuan.CodeAssuanCanceled, assuan.CodeNotConfirmed:
		return ErrCancelled
	case assuan.CodeNotTrusted:
		return ErrNotTrusted
	case assuan.CodeNoSecretKey:
		return ErrNoSecretKey
	default:
		return ErrGeneral
	}
}

// errorType returns a short label for metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrAgentUnavailable):
		return "agent_unavailable"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInvalidSExpression):
		return "invalid_sexp"
	case errors.Is(err, ErrUnsupportedDigestAlgorithm):
		return "unsupported_digest"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrOutOfMemory):
		return "out_of_memory"
	case errors.Is(err, ErrNotTrusted):
		return "not_trusted"
	case errors.Is(err, ErrNoSecretKey):
		return "no_secret_key"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "general"
	}
}
