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

//go:build unix

package secmem

import "golang.org/x/sys/unix"

func lock(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return unix.Mlock(p)
}

func unlock(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return unix.Munlock(p)
}
