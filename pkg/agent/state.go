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
	"sync"
	"sync/atomic"
)

// ProcessState holds state shared by every session of a process. It
// currently tracks whether the "no agent running" notice has been shown,
// so that the notice appears once per process rather than once per call.
type ProcessState struct {
	warnedNoAgent atomic.Bool
}

// NewProcessState returns a fresh state.
func NewProcessState() *ProcessState {
	return &ProcessState{}
}

var (
	defaultStateOnce sync.Once
	defaultState     *ProcessState
)

// DefaultProcessState returns the state used by clients that do not
// configure their own.
func DefaultProcessState() *ProcessState {
	defaultStateOnce.Do(func() {
		defaultState = NewProcessState()
	})
	return defaultState
}

// markNoAgentWarned returns true for the first caller only.
func (s *ProcessState) markNoAgentWarned() bool {
	return s.warnedNoAgent.CompareAndSwap(false, true)
}

// Reset clears all state.
func (s *ProcessState) Reset() {
	s.warnedNoAgent.Store(false)
}
