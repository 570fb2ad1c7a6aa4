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

package logger

import "context"

// NoOp discards everything.
type NoOp struct{}

func (NoOp) Debug(string, ...Field)                         {}
func (NoOp) Info(string, ...Field)                          {}
func (NoOp) Warn(string, ...Field)                          {}
func (NoOp) Error(string, ...Field)                         {}
func (NoOp) DebugContext(context.Context, string, ...Field) {}
func (n NoOp) With(...Field) Logger                         { return n }
func (n NoOp) WithError(error) Logger                       { return n }

var _ Logger = NoOp{}
var _ Logger = (*SlogAdapter)(nil)
