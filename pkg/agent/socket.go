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
	"fmt"
	"os"
	"path/filepath"
)

// SocketName is the file name of the agent's standard socket.
const SocketName = "S.gpg-agent"

// DefaultSocketPath locates the agent socket. An explicit homedir wins,
// then $GNUPGHOME, then the per-user runtime directory when it exists,
// and finally ~/.gnupg.
func DefaultSocketPath(homedir string) string {
	if homedir == "" {
		homedir = os.Getenv("GNUPGHOME")
	}
	if homedir != "" {
		return filepath.Join(homedir, SocketName)
	}
	if dir := runtimeDir(); dir != "" {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return filepath.Join(dir, SocketName)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gnupg", SocketName)
	}
	return filepath.Join(home, ".gnupg", SocketName)
}

func runtimeDir() string {
	uid := os.Getuid()
	if uid < 0 {
		return ""
	}
	return fmt.Sprintf("/run/user/%d/gnupg", uid)
}
