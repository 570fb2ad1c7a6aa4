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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Launcher starts an agent process. Implementations must return once the
// agent has been spawned; the session retries connecting afterwards.
type Launcher interface {
	Launch(ctx context.Context) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) error

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context) error {
	return f(ctx)
}

// CommandLauncher starts the agent through an external program, by
// default "gpgconf --launch gpg-agent".
type CommandLauncher struct {
	// Program defaults to "gpgconf"
	Program string

	// Args default to "--launch gpg-agent"
	Args []string

	// Homedir is passed as --homedir when set and Args is empty
	Homedir string
}

// Launch runs the configured program and waits for it to exit.
func (l *CommandLauncher) Launch(ctx context.Context) error {
	program, args := l.command()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("agent: launching %s: %w: %s", program, err, msg)
		}
		return fmt.Errorf("agent: launching %s: %w", program, err)
	}
	return nil
}

func (l *CommandLauncher) command() (string, []string) {
	program := l.Program
	if program == "" {
		program = "gpgconf"
	}
	args := l.Args
	if len(args) == 0 {
		if l.Homedir != "" {
			args = append(args, "--homedir", l.Homedir)
		}
		args = append(args, "--launch", "gpg-agent")
	}
	return program, args
}
